package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/autoflowhq/autoflow/runtime/execution"
	"github.com/autoflowhq/autoflow/runtime/expr"
	"github.com/autoflowhq/autoflow/runtime/node"
	"github.com/autoflowhq/autoflow/runtime/telemetry"
	"github.com/autoflowhq/autoflow/runtime/workflow"
)

// defaultHTTPTimeout bounds http_request actions that do not configure their
// own timeout.
const defaultHTTPTimeout = 15 * time.Second

type (
	// ActionOptions configures the Action node handler. All adapters are
	// optional; actions whose adapter is missing fail at execution time with a
	// configuration error.
	ActionOptions struct {
		// HTTP performs http_request actions. Nil uses a default client with a
		// 15 second timeout.
		HTTP HTTPDoer
		// Email performs email actions.
		Email EmailSender
		// Database performs database actions.
		Database DatabaseWriter
		// Logger receives log actions and diagnostics. Nil discards.
		Logger telemetry.Logger
	}

	// ActionHandler executes action nodes. The actionType configuration key
	// selects the behavior: http_request, email, database, or log.
	ActionHandler struct {
		http   HTTPDoer
		email  EmailSender
		db     DatabaseWriter
		logger telemetry.Logger
	}
)

// NewActionHandler builds the action node handler.
func NewActionHandler(opts ActionOptions) *ActionHandler {
	h := &ActionHandler{
		http:   opts.HTTP,
		email:  opts.Email,
		db:     opts.Database,
		logger: opts.Logger,
	}
	if h.http == nil {
		h.http = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if h.logger == nil {
		h.logger = telemetry.NoopLogger{}
	}
	return h
}

// Execute implements node.Handler.
func (h *ActionHandler) Execute(ctx context.Context, n workflow.Node, ec *execution.Context) node.Result {
	switch actionType := strVal(n.Config, "actionType"); actionType {
	case "http_request":
		return h.httpRequest(ctx, n, ec)
	case "email":
		return h.sendEmail(ctx, n, ec)
	case "database":
		return h.database(ctx, n, ec)
	case "log":
		return h.log(ctx, n, ec)
	default:
		return node.Failf("action node %s: unknown action type %q", n.ID, actionType)
	}
}

func (h *ActionHandler) httpRequest(ctx context.Context, n workflow.Node, ec *execution.Context) node.Result {
	url := expr.Substitute(strVal(n.Config, "url"), ec.Variables)
	if url == "" {
		return node.Failf("action node %s: url is required", n.ID)
	}
	method := strings.ToUpper(strVal(n.Config, "method"))
	if method == "" {
		method = http.MethodGet
	}
	timeout := defaultHTTPTimeout
	if secs, ok := numVal(n.Config, "timeout"); ok && secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		reader   io.Reader
		jsonBody bool
	)
	switch body := expr.SubstituteValue(n.Config["body"], ec.Variables).(type) {
	case nil:
	case string:
		reader = strings.NewReader(body)
	default:
		b, err := json.Marshal(body)
		if err != nil {
			return node.Failf("action node %s: encode request body: %v", n.ID, err)
		}
		reader = bytes.NewReader(b)
		jsonBody = true
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return node.Failf("action node %s: build request: %v", n.ID, err)
	}
	for k, v := range expr.SubstituteMap(mapVal(n.Config, "headers"), ec.Variables) {
		req.Header.Set(k, expr.Stringify(v))
	}
	if jsonBody && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.http.Do(req)
	if err != nil {
		return node.Failf("action node %s: http request: %v", n.ID, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return node.Failf("action node %s: read response: %v", n.ID, err)
	}
	if resp.StatusCode >= 400 {
		return node.Failf("action node %s: http request to %s returned status %d", n.ID, url, resp.StatusCode)
	}
	var parsed any = string(raw)
	var decoded any
	if json.Unmarshal(raw, &decoded) == nil {
		parsed = decoded
	}
	headers := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return node.Succeed(map[string]any{
		"status":  resp.StatusCode,
		"body":    parsed,
		"headers": headers,
	})
}

func (h *ActionHandler) sendEmail(ctx context.Context, n workflow.Node, ec *execution.Context) node.Result {
	if h.email == nil {
		return node.Failf("action node %s: email adapter is not configured", n.ID)
	}
	to := expr.Substitute(strVal(n.Config, "to"), ec.Variables)
	if to == "" {
		return node.Failf("action node %s: recipient is required", n.ID)
	}
	msg := EmailMessage{
		To:      to,
		Subject: expr.Substitute(strVal(n.Config, "subject"), ec.Variables),
		Body:    expr.Substitute(strVal(n.Config, "body"), ec.Variables),
	}
	receipt, err := h.email.Send(ctx, msg)
	if err != nil {
		return node.Failf("action node %s: send email: %v", n.ID, err)
	}
	return node.Succeed(map[string]any{
		"sent":      receipt.Sent,
		"to":        msg.To,
		"subject":   msg.Subject,
		"messageId": receipt.MessageID,
	})
}

func (h *ActionHandler) database(ctx context.Context, n workflow.Node, ec *execution.Context) node.Result {
	operation := strVal(n.Config, "operation")
	collection := expr.Substitute(strVal(n.Config, "collection"), ec.Variables)
	data := expr.SubstituteMap(mapVal(n.Config, "data"), ec.Variables)
	switch operation {
	case "insert":
		if h.db == nil {
			return node.Failf("action node %s: database adapter is not configured", n.ID)
		}
		id, err := h.db.Insert(ctx, collection, data)
		if err != nil {
			return node.Failf("action node %s: database insert: %v", n.ID, err)
		}
		return node.Succeed(map[string]any{
			"acknowledged": true,
			"operation":    operation,
			"insertedId":   id,
		})
	case "update":
		if h.db == nil {
			return node.Failf("action node %s: database adapter is not configured", n.ID)
		}
		filter := expr.SubstituteMap(mapVal(n.Config, "filter"), ec.Variables)
		modified, err := h.db.Update(ctx, collection, filter, data)
		if err != nil {
			return node.Failf("action node %s: database update: %v", n.ID, err)
		}
		return node.Succeed(map[string]any{
			"acknowledged":  true,
			"operation":     operation,
			"modifiedCount": modified,
		})
	default:
		// Unsupported operations are acknowledged without touching storage so
		// imported workflow definitions keep running.
		h.logger.Info(ctx, "unsupported database operation, skipping",
			"node", n.ID, "operation", operation)
		return node.Succeed(map[string]any{
			"acknowledged": true,
			"operation":    operation,
		})
	}
}

func (h *ActionHandler) log(ctx context.Context, n workflow.Node, ec *execution.Context) node.Result {
	message := expr.Substitute(strVal(n.Config, "message"), ec.Variables)
	level := strVal(n.Config, "level")
	if level == "" {
		level = "info"
	}
	switch level {
	case "debug":
		h.logger.Debug(ctx, message, "node", n.ID)
	case "warn":
		h.logger.Warn(ctx, message, "node", n.ID)
	case "error":
		h.logger.Error(ctx, message, "node", n.ID)
	default:
		h.logger.Info(ctx, message, "node", n.ID)
	}
	return node.Succeed(map[string]any{
		"logged":  true,
		"message": message,
		"level":   level,
	})
}
