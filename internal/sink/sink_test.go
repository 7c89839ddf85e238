package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/tanakai/internal/config"
	"firestige.xyz/tanakai/internal/core"
)

func sampleEvent() core.PhotonEvent {
	ch := uint8(1)
	ev := core.NewPhotonEvent(core.EventPlayerAppear, 1, &ch, time.UnixMilli(1_700_000_000_000))
	ev.Data["player_name"] = "Hi"
	return ev
}

func fastHTTPOptions(url string) HTTPOptions {
	opts := DefaultHTTPOptions()
	opts.URL = url
	opts.InitialBackoff = time.Millisecond
	opts.MaxBackoff = 5 * time.Millisecond
	return opts
}

func TestHTTPSinkPostsJSON(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/events/photon", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	opts := fastHTTPOptions(srv.URL + "/")
	opts.Headers = map[string]string{"X-Api-Key": "secret"}
	s, err := NewHTTPSink(opts)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, srv.URL+"/events/photon", s.Endpoint())

	require.NoError(t, s.Send(context.Background(), sampleEvent()))
	assert.Equal(t, "PlayerAppear", got["event_type"])
	assert.Equal(t, float64(1), got["channel_id"])
	assert.Equal(t, "Hi", got["data"].(map[string]any)["player_name"])
}

func TestHTTPSinkRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := NewHTTPSink(fastHTTPOptions(srv.URL))
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), sampleEvent()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPSinkGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	opts := fastHTTPOptions(srv.URL)
	opts.MaxRetries = 2
	s, err := NewHTTPSink(opts)
	require.NoError(t, err)

	err = s.Send(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrTransport))
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPSinkClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s, err := NewHTTPSink(fastHTTPOptions(srv.URL))
	require.NoError(t, err)

	err = s.Send(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrTransport))
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPSinkUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	opts := fastHTTPOptions(url)
	opts.MaxRetries = 1
	s, err := NewHTTPSink(opts)
	require.NoError(t, err)

	err = s.Send(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrTransport))
}

func TestHTTPSinkInvalidURL(t *testing.T) {
	for _, url := range []string{"", "collector:8080", "ftp://collector"} {
		opts := DefaultHTTPOptions()
		opts.URL = url
		_, err := NewHTTPSink(opts)
		assert.ErrorIs(t, err, core.ErrConfigInvalid, url)
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink(t *testing.T) {
	s, err := NewKafkaSink(KafkaOptions{Brokers: []string{"localhost:9092"}, Topic: "events", Compression: "gzip"})
	require.NoError(t, err)
	fw := &fakeWriter{}
	s.writer = fw

	require.NoError(t, s.Send(context.Background(), sampleEvent()))
	require.Len(t, fw.msgs, 1)
	assert.Equal(t, "PlayerAppear", string(fw.msgs[0].Key))
	assert.Equal(t, int64(1_700_000_000_000), fw.msgs[0].Time.UnixMilli())

	var decoded core.PhotonEvent
	require.NoError(t, json.Unmarshal(fw.msgs[0].Value, &decoded))
	assert.Equal(t, core.EventPlayerAppear, decoded.Type)

	fw.err = errors.New("leader not available")
	err = s.Send(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, core.ErrTransport)

	require.NoError(t, s.Close())
	assert.True(t, fw.closed)
}

func TestKafkaSinkDefaultsWriteEachEvent(t *testing.T) {
	opts := DefaultKafkaOptions()
	opts.Brokers = []string{"localhost:9092"}
	s, err := NewKafkaSink(opts)
	require.NoError(t, err)
	defer s.Close()

	w, ok := s.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, 1, w.BatchSize)
	assert.LessOrEqual(t, w.BatchTimeout, 10*time.Millisecond)

	s, err = NewKafkaSink(KafkaOptions{Brokers: []string{"localhost:9092"}, Topic: "events"})
	require.NoError(t, err)
	defer s.Close()
	w = s.writer.(*kafka.Writer)
	assert.Equal(t, 1, w.BatchSize)
	assert.Equal(t, 5*time.Millisecond, w.BatchTimeout)
}

func TestKafkaSinkOptions(t *testing.T) {
	tests := []struct {
		name string
		opts KafkaOptions
	}{
		{"missing brokers", KafkaOptions{Topic: "t"}},
		{"missing topic", KafkaOptions{Brokers: []string{"b:9092"}}},
		{"bad compression", KafkaOptions{Brokers: []string{"b:9092"}, Topic: "t", Compression: "brotli"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewKafkaSink(tt.opts)
			assert.ErrorIs(t, err, core.ErrConfigInvalid)
		})
	}
}

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewConsoleSinkTo(ConsoleOptions{Format: "text"}, &buf)
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), sampleEvent()))
	assert.Equal(t, "[22:13:20.000] PlayerAppear op=1 ch=1 player_name=Hi\n", buf.String())

	buf.Reset()
	s, err = NewConsoleSinkTo(ConsoleOptions{}, &buf)
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), sampleEvent()))
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "PlayerAppear", line["event_type"])

	_, err = NewConsoleSinkTo(ConsoleOptions{Format: "xml"}, &buf)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestNew(t *testing.T) {
	s, err := New(config.SinkConfig{Type: TypeHTTP, Options: map[string]any{
		"url":         "http://collector:8080",
		"timeout":     "2s",
		"max_retries": "5",
	}})
	require.NoError(t, err)
	hs := s.(*HTTPSink)
	assert.Equal(t, "http://collector:8080/events/photon", hs.Endpoint())
	assert.Equal(t, 2*time.Second, hs.client.Timeout)
	assert.Equal(t, uint(5), hs.opts.MaxRetries)

	s, err = New(config.SinkConfig{Type: TypeKafka, Options: map[string]any{
		"brokers": "a:9092,b:9092",
		"topic":   "photon",
	}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(config.SinkConfig{Type: TypeConsole})
	require.NoError(t, err)
	assert.IsType(t, &ConsoleSink{}, s)
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(config.SinkConfig{Type: TypeHTTP, Options: map[string]any{"uri": "http://x"}})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)

	_, err = New(config.SinkConfig{Type: TypeHTTP, Options: map[string]any{"timeout": "soon"}})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)

	_, err = New(config.SinkConfig{Type: "smtp"})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}
