package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-monitor/tracking/internal/domain"
)

func TestFormatterShort(t *testing.T) {
	f := NewFormatter(fakeDevices{
		1: {ID: 1, Name: "Truck 1"},
		2: {ID: 2, PlateNumber: "AA-2-00042"},
	})
	ctx := context.Background()

	braking := alarmEvent(1, domain.AlarmBraking)
	braking.Set("previousSpeed", 54.0)
	braking.Set("currentSpeed", 0.0)

	overspeed := domain.NewEvent(domain.EventDeviceOverspeed, 2, "")
	overspeed.Set("speed", 60.0)
	overspeed.Set("speedLimit", 50.0)

	cases := []struct {
		name string
		ev   *domain.Event
		pos  *domain.Position
		want string
	}{
		{"test event", domain.NewTestEvent(), nil, "Test notification"},
		{"alarm with address", alarmEvent(1, domain.AlarmSOS), &domain.Position{Address: "Piassa"}, "Truck 1: SOS alarm near Piassa"},
		{"unknown alarm code", alarmEvent(1, "io99"), nil, "Truck 1: io99 alarm"},
		{"braking", braking, nil, "Truck 1: Hard Braking alarm, speed dropped from 100 km/h to 0 km/h"},
		{"overspeed by plate", overspeed, nil, "AA-2-00042: exceeds the speed 111 km/h (limit 93 km/h)"},
		{"unknown device", domain.NewEvent("ignitionOn", 7, ""), nil, "Device 7: ignitionOn"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, f.Short(ctx, tc.ev, tc.pos))
		})
	}
}

func TestRedisNotificatorChannels(t *testing.T) {
	pub := &fakePublisher{}
	r := NewRedis(pub, NewFormatter(nil), nil, quietLogger())

	r.SendSync(context.Background(), 0, alarmEvent(3, domain.AlarmSOS), nil)
	r.SendSync(context.Background(), 12, alarmEvent(3, domain.AlarmSOS), nil)

	assert.Equal(t, []string{"fleet:alerts", "fleet:alerts", "user:12:alerts"}, pub.channels)

	var p Payload
	require.NoError(t, json.Unmarshal(pub.payloads[0], &p))
	assert.Equal(t, "Device 3: SOS alarm", p.Message)
	assert.Equal(t, domain.AlarmSOS, p.Event.Alarm())
	assert.Nil(t, p.Position)
}

func TestRedisNotificatorFailureDoesNotPanic(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection reset")}
	r := NewRedis(pub, NewFormatter(nil), nil, quietLogger())

	assert.NotPanics(t, func() {
		r.SendSync(context.Background(), 0, domain.NewTestEvent(), nil)
	})
}

func dialHub(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebPushesToSubscribedUsers(t *testing.T) {
	hub := NewHub(quietLogger())
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	alice := dialHub(t, srv, "1")
	bob := dialHub(t, srv, "2")
	require.Eventually(t, func() bool { return hub.Len() == 2 }, time.Second, 10*time.Millisecond)

	web := NewWeb(hub, NewFormatter(nil), nil, quietLogger())
	web.SendSync(context.Background(), 1, alarmEvent(3, domain.AlarmSOS), nil)
	web.SendSync(context.Background(), 0, domain.NewTestEvent(), nil)

	read := func(conn *websocket.Conn) Payload {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var p Payload
		require.NoError(t, conn.ReadJSON(&p))
		return p
	}

	assert.Equal(t, "Device 3: SOS alarm", read(alice).Message)
	assert.Equal(t, "Test notification", read(alice).Message)
	// bob only gets the broadcast
	assert.Equal(t, "Test notification", read(bob).Message)
}
