package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsAssignIDs(t *testing.T) {
	msg := Invalidate("content changed", "/a.webp")
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, TypeInvalidateCache, msg.Type)
	assert.Equal(t, []string{"/a.webp"}, msg.Assets)
	assert.NotEqual(t, msg.ID, Invalidate("x").ID)
	assert.NoError(t, msg.Validate())
	assert.ErrorIs(t, Message{Type: "SKIP_WAITING"}.Validate(), ErrUnknownType)
}

func TestMessageJSONShape(t *testing.T) {
	raw, err := json.Marshal(Message{Type: TypeInvalidateCache, Reason: "r", Assets: []string{"/x.jpg"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"INVALIDATE_CACHE","reason":"r","assets":["/x.jpg"]}`, string(raw))
}

func TestClientsBroadcast(t *testing.T) {
	clients := NewClients()
	var got []Type
	cancel := clients.Subscribe(ClientFunc(func(m Message) { got = append(got, m.Type) }))
	clients.Subscribe(ClientFunc(func(m Message) { got = append(got, m.Type) }))

	assert.Equal(t, 2, clients.Broadcast(BackgroundCheckRequested()))
	cancel()
	assert.Equal(t, 1, clients.Broadcast(BackgroundCheckRequested()))
	assert.Len(t, got, 3)
	assert.Equal(t, 1, clients.Len())
}

func TestHTTPMessengerRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, MessagesPath, r.URL.Path)
		var msg Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		_ = json.NewEncoder(w).Encode(Reply{Version: "v6", CacheNames: []string{"images-v6"}, Timestamp: 1})
	}))
	defer srv.Close()

	reply, err := NewHTTPMessenger(srv.Client(), srv.URL+"/").Post(context.Background(), Status())
	require.NoError(t, err)
	assert.Equal(t, "v6", reply.Version)
	assert.Equal(t, []string{"images-v6"}, reply.CacheNames)
}

func TestHTTPMessengerWithoutController(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	_, err := NewHTTPMessenger(srv.Client(), srv.URL).Post(context.Background(), Invalidate("x"))
	assert.True(t, errors.Is(err, ErrNoController))

	srv.Close()
	_, err = NewHTTPMessenger(nil, srv.URL).Post(context.Background(), Invalidate("x"))
	assert.ErrorIs(t, err, ErrNoController)
}

func TestHTTPMessengerMapsErrorCodes(t *testing.T) {
	cases := []struct {
		status int
		code   string
		want   error
	}{
		{http.StatusBadRequest, CodeInvalidMessage, ErrInvalidMessage},
		{http.StatusBadRequest, CodeUnknownType, ErrUnknownType},
		{http.StatusServiceUnavailable, CodeNoController, ErrNoController},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": tc.code})
			}))
			defer srv.Close()

			_, err := NewHTTPMessenger(srv.Client(), srv.URL).Post(context.Background(), Invalidate("x"))
			assert.ErrorIs(t, err, tc.want)
			for _, other := range []error{ErrInvalidMessage, ErrUnknownType, ErrNoController} {
				if other != tc.want {
					assert.NotErrorIs(t, err, other)
				}
			}
		})
	}
}

func TestHTTPMessengerReportsUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewHTTPMessenger(srv.Client(), srv.URL).Post(context.Background(), Invalidate("x"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownType)
	assert.Contains(t, err.Error(), "400")
}
