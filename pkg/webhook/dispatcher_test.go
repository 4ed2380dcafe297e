package webhook

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend_IncludesBearerSecret(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := &Dispatcher{httpClient: srv.Client()}
	err := d.post(context.Background(), srv.URL, "topsecret", Payload{Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer topsecret", gotAuth)
}

func TestSend_RejectsSSRFDestination(t *testing.T) {
	d := &Dispatcher{httpClient: http.DefaultClient}
	err := d.send(context.Background(), "http://127.0.0.1:9/anything", "", Payload{})
	require.Error(t, err)
}

func TestSend_NonTwoxxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := &Dispatcher{httpClient: srv.Client()}
	err := d.post(context.Background(), srv.URL, "", Payload{})
	require.Error(t, err)
}

func TestIsDisallowed(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1":   true,
		"10.0.0.5":    true,
		"169.254.1.1": true,
		"8.8.8.8":     false,
		"1.1.1.1":     false,
	}
	for ipStr, want := range cases {
		ip := net.ParseIP(ipStr)
		require.NotNil(t, ip, ipStr)
		assert.Equal(t, want, isDisallowed(ip), ipStr)
	}
}
