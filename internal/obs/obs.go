// Package obs carries per-invocation logging context: a generated
// request id plus the violation trace id once known.
package obs

import (
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
)

// Ctx identifies one handler invocation in logs.
type Ctx struct {
	Service   string
	RequestID string
	TraceID   string
}

// NewCtx returns a context for a fresh invocation.
func NewCtx(service string) Ctx {
	return Ctx{Service: service, RequestID: uuid.NewString()}
}

// WithTrace returns a copy bound to a violation trace id.
func (c Ctx) WithTrace(traceID string) Ctx {
	c.TraceID = traceID
	return c
}

// Logf writes one key=value log line. kv must be alternating keys and values.
func (c Ctx) Logf(action string, kv ...any) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] action=%s request_id=%s", c.Service, action, c.RequestID)
	if c.TraceID != "" {
		fmt.Fprintf(&b, " trace_id=%s", c.TraceID)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	log.Print(b.String())
}

// Errorf writes one error log line.
func (c Ctx) Errorf(action string, err error) {
	c.Logf(action, "error", err)
}
