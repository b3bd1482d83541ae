package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecord(t *testing.T) {
	before := testutil.ToFloat64(packets.WithLabelValues("read_reg"))
	RecordPacket("read_reg", time.Millisecond)
	RecordPacket("read_reg", time.Millisecond)
	if got := testutil.ToFloat64(packets.WithLabelValues("read_reg")); got != before+2 {
		t.Fatal("packets:", got)
	}

	RecordResponse("read_reg", "invalid_field")
	if got := testutil.ToFloat64(responses.WithLabelValues("read_reg", "invalid_field")); got < 1 {
		t.Fatal("responses:", got)
	}

	s := testutil.ToFloat64(sessions)
	SessionOpened()
	SessionClosed()
	if testutil.ToFloat64(sessions) != s {
		t.Fatal("session gauge not balanced")
	}
}

func TestHandler(t *testing.T) {
	RecordFramingError("unknown_tag")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `monitortcp_proto_framing_errors_total{reason="unknown_tag"}`) {
		t.Fatal("framing error counter not exported")
	}
}
