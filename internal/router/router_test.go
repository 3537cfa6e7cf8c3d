package router

import (
	"context"
	"errors"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/nl2sql"
	"github.com/tabletalk/tabletalk/internal/schema"
)

type fakeClassifier struct {
	result Classification
	calls  int
}

func (f *fakeClassifier) Classify(_ context.Context, _ string) Classification {
	f.calls++
	return f.result
}

type fakeHandler struct {
	response Response
	err      error
	calls    int
}

func (f *fakeHandler) Handle(_ context.Context, _ string, _ ConversationContext) (Response, error) {
	f.calls++
	return f.response, f.err
}

type fixedSchema struct{ ctx schema.Context }

func (f fixedSchema) Current() schema.Context { return f.ctx }

func routerSchema() schema.Context {
	return schema.Context{Tables: []schema.Table{
		{Name: "test_history", Columns: []schema.Column{
			{Name: "test_uid", Type: "text"},
			{Name: "success", Type: "boolean"},
		}},
	}}
}

func TestRouteEmptyInputReturnsHelp(t *testing.T) {
	classifier := &fakeClassifier{}
	chat := &fakeHandler{}
	r := New(classifier, &fakeHandler{}, &fakeHandler{}, chat, testLogger(), Config{ConfidenceThreshold: 0.5})

	for _, input := range []string{"", "   ", "\n\t"} {
		response := r.Route(context.Background(), input, ConversationContext{})
		if response.Kind != ResponseText || response.Text == "" {
			t.Fatalf("Route(%q) = %+v", input, response)
		}
	}
	if classifier.calls != 0 {
		t.Fatalf("classifier invoked %d times for empty input", classifier.calls)
	}
	if chat.calls != 0 {
		t.Fatalf("chat handler invoked %d times for empty input", chat.calls)
	}
}

func TestRouteDispatchesByCapability(t *testing.T) {
	cases := []struct {
		capability Capability
	}{
		{CapabilityNL2SQL},
		{CapabilityCodeGen},
		{CapabilityChat},
	}

	for _, tc := range cases {
		t.Run(string(tc.capability), func(t *testing.T) {
			nl := &fakeHandler{response: Response{Text: "table", Kind: ResponseTable}}
			code := &fakeHandler{response: Response{Text: "code", Kind: ResponseText}}
			chat := &fakeHandler{response: Response{Text: "chat", Kind: ResponseText}}
			classifier := &fakeClassifier{result: Classification{Capability: tc.capability, Confidence: 0.9}}
			r := New(classifier, nl, code, chat, testLogger(), Config{ConfidenceThreshold: 0.5})

			response := r.Route(context.Background(), "do something", ConversationContext{})
			if response.UsedCapability != tc.capability {
				t.Fatalf("used = %s", response.UsedCapability)
			}
			if response.Confidence != 0.9 {
				t.Fatalf("confidence = %v", response.Confidence)
			}
			total := nl.calls + code.calls + chat.calls
			if total != 1 {
				t.Fatalf("handler calls = %d, want exactly one", total)
			}
		})
	}
}

func TestRouteLowConfidenceFallsBackToChat(t *testing.T) {
	nl := &fakeHandler{response: Response{Text: "table", Kind: ResponseTable}}
	chat := &fakeHandler{response: Response{Text: "chat answer", Kind: ResponseText}}
	classifier := &fakeClassifier{result: Classification{Capability: CapabilityNL2SQL, Confidence: 0.3}}
	r := New(classifier, nl, &fakeHandler{}, chat, testLogger(), Config{ConfidenceThreshold: 0.5})

	response := r.Route(context.Background(), "maybe a data question", ConversationContext{})
	if response.UsedCapability != CapabilityChat {
		t.Fatalf("used = %s", response.UsedCapability)
	}
	if nl.calls != 0 || chat.calls != 1 {
		t.Fatalf("nl calls = %d, chat calls = %d", nl.calls, chat.calls)
	}
}

func TestRouteMapsNL2SQLErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"guard rejection", &GuardRejectionError{Violations: []nl2sql.Violation{nl2sql.ViolationForbiddenKeyword}}, msgStatementRejected},
		{"no statement", nl2sql.ErrNoStatement, msgCouldNotUnderstand},
		{"llm timeout", &llm.Error{Kind: llm.KindTimeout, Err: errors.New("deadline")}, msgCouldNotUnderstand},
		{"query timeout", &nl2sql.ExecError{Kind: nl2sql.ExecTimeout, Err: errors.New("57014")}, msgQueryTimeout},
		{"query permission", &nl2sql.ExecError{Kind: nl2sql.ExecPermission, Err: errors.New("42501")}, msgQueryFailed},
		{"unknown", errors.New("boom"), msgQueryFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			nl := &fakeHandler{err: tc.err}
			classifier := &fakeClassifier{result: Classification{Capability: CapabilityNL2SQL, Confidence: 0.9}}
			r := New(classifier, nl, &fakeHandler{}, &fakeHandler{}, testLogger(), Config{ConfidenceThreshold: 0.5})

			response := r.Route(context.Background(), "show data", ConversationContext{})
			if response.Kind != ResponseError {
				t.Fatalf("kind = %s", response.Kind)
			}
			if response.Text != tc.want {
				t.Fatalf("text = %q, want %q", response.Text, tc.want)
			}
		})
	}
}

func TestRouteMapsChatErrors(t *testing.T) {
	chat := &fakeHandler{err: &llm.Error{Kind: llm.KindUnavailable, Err: errors.New("down")}}
	classifier := &fakeClassifier{result: Classification{Capability: CapabilityChat, Confidence: 0.9}}
	r := New(classifier, &fakeHandler{}, &fakeHandler{}, chat, testLogger(), Config{ConfidenceThreshold: 0.5})

	response := r.Route(context.Background(), "hello", ConversationContext{})
	if response.Text != msgBackendTrouble || response.Kind != ResponseError {
		t.Fatalf("response = %+v", response)
	}
}

func TestRouteCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chat := &fakeHandler{response: Response{Text: "late answer", Kind: ResponseText}}
	classifier := &fakeClassifier{result: Classification{Capability: CapabilityChat, Confidence: 0.9}}
	r := New(classifier, &fakeHandler{}, &fakeHandler{}, chat, testLogger(), Config{ConfidenceThreshold: 0.5})

	response := r.Route(ctx, "hello", ConversationContext{})
	if response.Kind != ResponseError {
		t.Fatalf("kind = %s", response.Kind)
	}
	if strings.Contains(response.Text, "late answer") {
		t.Fatal("handler output delivered after cancellation")
	}
}

// End-to-end through the real pipeline with a stubbed completion backend
// and a mock database.
func TestRouteNL2SQLHappyPath(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT test_uid, success FROM test_history").
		WillReturnRows(sqlmock.NewRows([]string{"test_uid", "success"}).
			AddRow("login_flow", false))

	client := &stubClient{response: "SELECT test_uid, success FROM test_history WHERE success = false;"}
	handler := NewNL2SQLHandler(
		nl2sql.NewGenerator(client, nl2sql.GeneratorConfig{}),
		nl2sql.NewGuard(nl2sql.GuardConfig{}),
		nl2sql.NewExecutor(db, nl2sql.ExecutorConfig{}),
		nl2sql.NewFormatter(50),
		fixedSchema{ctx: routerSchema()},
	)
	classifier := &fakeClassifier{result: Classification{Capability: CapabilityNL2SQL, Confidence: 0.95}}
	r := New(classifier, handler, &fakeHandler{}, &fakeHandler{}, testLogger(), Config{ConfidenceThreshold: 0.5})

	response := r.Route(context.Background(), "show me failed tests", ConversationContext{})
	if response.Kind != ResponseTable {
		t.Fatalf("kind = %s, text = %q", response.Kind, response.Text)
	}
	if !strings.Contains(response.Text, "login_flow") {
		t.Fatalf("text = %q", response.Text)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

// A destructive model response must stop at the guard; the database is never
// touched.
func TestRouteNL2SQLGuardStopsDestructiveStatement(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	client := &stubClient{response: "DROP TABLE test_history"}
	handler := NewNL2SQLHandler(
		nl2sql.NewGenerator(client, nl2sql.GeneratorConfig{}),
		nl2sql.NewGuard(nl2sql.GuardConfig{}),
		nl2sql.NewExecutor(db, nl2sql.ExecutorConfig{}),
		nl2sql.NewFormatter(50),
		fixedSchema{ctx: routerSchema()},
	)
	classifier := &fakeClassifier{result: Classification{Capability: CapabilityNL2SQL, Confidence: 0.95}}
	r := New(classifier, handler, &fakeHandler{}, &fakeHandler{}, testLogger(), Config{ConfidenceThreshold: 0.5})

	response := r.Route(context.Background(), "delete all the tests", ConversationContext{})
	if response.Kind != ResponseError {
		t.Fatalf("kind = %s", response.Kind)
	}
	if response.Text != msgStatementRejected {
		t.Fatalf("text = %q", response.Text)
	}
}

func TestChatHandlerReplaysPriorTurns(t *testing.T) {
	client := &recordingClient{response: "sure, here is more detail"}
	handler := NewChatHandler(client, ChatConfig{})

	conv := ConversationContext{
		SessionID: "sess-1",
		PriorTurns: []Turn{
			{Role: "user", Text: "what is a flaky test?"},
			{Role: "assistant", Text: "a test with inconsistent results"},
		},
	}
	response, err := handler.Handle(context.Background(), "tell me more", conv)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if response.Kind != ResponseText || response.Text == "" {
		t.Fatalf("response = %+v", response)
	}

	recorded := client.messages
	if len(recorded) != 4 {
		t.Fatalf("messages = %d, want system + 2 prior + current", len(recorded))
	}
	if recorded[1].Role != llm.RoleUser || recorded[2].Role != llm.RoleAssistant {
		t.Fatalf("prior turn roles = %s, %s", recorded[1].Role, recorded[2].Role)
	}
	if recorded[3].Content != "tell me more" {
		t.Fatalf("current turn = %q", recorded[3].Content)
	}
	if client.options.Temperature != 0.7 || client.options.MaxTokens != 600 {
		t.Fatalf("options = %+v", client.options)
	}
}

func TestCodeGenHandlerRendersFencedBlock(t *testing.T) {
	client := &recordingClient{response: `{"code": "func Add(a, b int) int { return a + b }", "language": "go", "explanation": "adds two integers"}`}
	handler := NewCodeGenHandler(client, CodeGenConfig{})

	response, err := handler.Handle(context.Background(), "write an add function", ConversationContext{})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.HasPrefix(response.Text, "```go\n") {
		t.Fatalf("text = %q", response.Text)
	}
	if !strings.Contains(response.Text, "adds two integers") {
		t.Fatalf("text = %q", response.Text)
	}
	if client.options.Temperature != 0.2 || client.options.MaxTokens != 1000 || !client.options.ForceJSON {
		t.Fatalf("options = %+v", client.options)
	}
}

type recordingClient struct {
	response string
	err      error
	messages []llm.Message
	options  llm.Options
}

func (r *recordingClient) Complete(_ context.Context, messages []llm.Message, options llm.Options) (string, error) {
	r.messages = messages
	r.options = options
	return r.response, r.err
}
