package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/gorilla/websocket"
	slam "github.com/milosgajdos/go-markerslam"
	"github.com/milosgajdos/go-markerslam/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dial(t *testing.T, h *Hub) (*websocket.Conn, func()) {
	srv := httptest.NewServer(h)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.Clients() == 1 }, time.Second, 5*time.Millisecond)

	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func read(t *testing.T, conn *websocket.Conn) envelope {
	var e envelope
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&e))

	return e
}

func TestHubBroadcast(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	h := NewHub(golog.NewTestLogger(t))
	conn, done := dial(t, h)
	defer done()

	require.NoError(h.PublishPose(slam.PoseRecord{Header: slam.Header{Seq: 4, FrameID: "map"}}))
	e := read(t, conn)
	assert.Equal(TypePose, e.Type)

	var pose slam.PoseRecord
	require.NoError(json.Unmarshal(e.Data, &pose))
	assert.Equal(uint64(4), pose.Header.Seq)
	assert.Equal("map", pose.Header.FrameID)

	require.NoError(h.PublishLandmarks(slam.LandmarkArray{Landmarks: []slam.LandmarkRecord{{IDs: []int{1}}}}))
	e = read(t, conn)
	assert.Equal(TypeLandmarks, e.Type)

	tf := geom.StampedTransform{
		Transform:    geom.FromPose2D(geom.NewPose2D(1, 2, 0)),
		FrameID:      "map",
		ChildFrameID: "odom",
	}
	require.NoError(h.SendTransform(tf))
	require.NoError(h.SendTransform(tf))
	e = read(t, conn)
	assert.Equal(TypeTransform, e.Type)
	e = read(t, conn)

	var out Transform
	require.NoError(json.Unmarshal(e.Data, &out))
	assert.Equal(uint64(2), out.Header.Seq)
	assert.Equal("odom", out.ChildFrameID)
	assert.Equal([3]float64{1, 2, 0}, out.Translation)
	assert.Equal(1.0, out.Rotation[3])
}

func TestHubDisconnect(t *testing.T) {
	assert := assert.New(t)

	h := NewHub(golog.NewTestLogger(t))
	conn, done := dial(t, h)
	defer done()

	conn.Close()
	assert.Eventually(func() bool { return h.Clients() == 0 }, time.Second, 5*time.Millisecond)

	// no clients: nothing to fail
	assert.NoError(h.PublishPose(slam.PoseRecord{}))
	assert.NoError(h.Close())
}
