package rembg

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerRemBG_Remove(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/remove", r.URL.Path)

		file, _, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		assert.Equal(t, centaur, data)
		assert.Equal(t, "isnet-general-use", r.FormValue("model"))

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("transparent png"))
	}))
	defer server.Close()

	got, err := NewServerRemBG(server.URL+"/", "isnet-general-use", nil).Remove(context.Background(), centaur)
	require.NoError(t, err)
	assert.Equal(t, []byte("transparent png"), got)
}

func TestServerRemBG_Remove_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "服务端报错", status: http.StatusInternalServerError, body: "model crashed", wantErr: "model crashed"},
		{name: "空响应", status: http.StatusOK, body: "", wantErr: "empty response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewServerRemBG(server.URL, "u2net", nil).Remove(context.Background(), centaur)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestServerRemBG_Ping(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := NewServerRemBG(server.URL, "u2net", nil).Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}
