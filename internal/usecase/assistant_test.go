package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"pgregory.net/rapid"

	"citizen-assistant/internal/actions"
	"citizen-assistant/internal/analyzer"
	"citizen-assistant/internal/directory"
	"citizen-assistant/internal/domain"
	"citizen-assistant/internal/metrics"
	"citizen-assistant/internal/patterns"
	"citizen-assistant/internal/policy"
	"citizen-assistant/internal/proactive"
	"citizen-assistant/internal/repository"
)

var now = time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC)

type testingT interface {
	require.TestingT
	Helper()
}

type deps struct {
	analyzer   *analyzer.Analyzer
	rules      *proactive.Engine
	policy     Responder
	store      *repository.MemoryStore
	wrapStore  func(ConversationStore) ConversationStore
	dir        Directory
	memory     *directory.Memory
	dispatcher *actions.Dispatcher
}

func newDeps(t testingT) deps {
	t.Helper()
	clock := func() time.Time { return now }
	mem := directory.NewDemo(now, directory.WithClock(clock))
	an, err := analyzer.New(patterns.Default())
	require.NoError(t, err)
	pol, err := policy.New(mem, an)
	require.NoError(t, err)
	disp, err := actions.New(mem, actions.WithClock(clock))
	require.NoError(t, err)
	return deps{
		analyzer:   an,
		rules:      proactive.NewEngine(),
		policy:     pol,
		store:      repository.NewMemoryStore(0),
		dir:        mem,
		memory:     mem,
		dispatcher: disp,
	}
}

func counterIDs() func() string {
	var n atomic.Int64
	return func() string { return strconv.FormatInt(n.Add(1), 10) }
}

func (d deps) build(t testingT, opts ...Option) *Assistant {
	t.Helper()
	base := []Option{
		WithClock(func() time.Time { return now }),
		WithIDGenerator(counterIDs()),
	}
	var store ConversationStore = d.store
	if d.wrapStore != nil {
		store = d.wrapStore(store)
	}
	a, err := NewAssistant(d.analyzer, d.rules, d.policy, store, d.dir, d.dispatcher, append(base, opts...)...)
	require.NoError(t, err)
	return a
}

type panickingResponder struct{}

func (panickingResponder) Respond(context.Context, policy.Turn, []domain.ProactiveAction) (policy.Response, error) {
	panic("boom")
}

type failingPayments struct{ *directory.Memory }

func (failingPayments) GetUserPayments(context.Context, string) ([]domain.Payment, error) {
	return nil, errors.New("directory unavailable")
}

// failingCreate rejects every new conversation the way a throttled backend would.
type failingCreate struct{ ConversationStore }

func (failingCreate) Create(context.Context, domain.Conversation) error {
	return errors.New("repository: Create: throttled")
}

// racingCreate lets another writer start the user's conversation just
// before the assistant's own Create.
type racingCreate struct {
	ConversationStore
	other domain.Conversation
}

func (r racingCreate) Create(ctx context.Context, conv domain.Conversation) error {
	if err := r.ConversationStore.Create(ctx, r.other); err != nil {
		return err
	}
	return r.ConversationStore.Create(ctx, conv)
}

type upstreamError struct{ status int }

func (e *upstreamError) Error() string       { return fmt.Sprintf("status %d", e.status) }
func (e *upstreamError) HTTPStatusCode() int { return e.status }

type throttledEligibility struct{ *directory.Memory }

func (throttledEligibility) CheckEligibility(context.Context, string, domain.PaymentType) (domain.Eligibility, error) {
	return domain.Eligibility{}, fmt.Errorf("directoryapi: %w", &upstreamError{status: 429})
}

func TestNewAssistant_Validation(t *testing.T) {
	d := newDeps(t)
	cases := []struct {
		name  string
		build func() (*Assistant, error)
	}{
		{"analyzer", func() (*Assistant, error) {
			return NewAssistant(nil, d.rules, d.policy, d.store, d.dir, d.dispatcher)
		}},
		{"rules", func() (*Assistant, error) {
			return NewAssistant(d.analyzer, nil, d.policy, d.store, d.dir, d.dispatcher)
		}},
		{"policy", func() (*Assistant, error) {
			return NewAssistant(d.analyzer, d.rules, nil, d.store, d.dir, d.dispatcher)
		}},
		{"store", func() (*Assistant, error) {
			return NewAssistant(d.analyzer, d.rules, d.policy, nil, d.dir, d.dispatcher)
		}},
		{"directory", func() (*Assistant, error) {
			return NewAssistant(d.analyzer, d.rules, d.policy, d.store, nil, d.dispatcher)
		}},
		{"dispatcher", func() (*Assistant, error) {
			return NewAssistant(d.analyzer, d.rules, d.policy, d.store, d.dir, nil)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := tc.build()
			require.Error(t, err)
			require.Nil(t, a)
		})
	}
}

func TestProcessMessage_NextPaymentOverview(t *testing.T) {
	d := newDeps(t)
	a := d.build(t)

	out, err := a.ProcessMessage(context.Background(), MessageInput{UserID: "user_001", Message: "When is my next payment?"})
	require.NoError(t, err)
	require.Equal(t, policy.TypePaymentOverview, out.Type)
	require.Equal(t, domain.IntentPaymentEnquiry, out.Intent)
	require.Contains(t, out.Response, "$191.24")
	require.Contains(t, out.Response, "12/01/2024")
	require.Equal(t, "conv_1", out.ConversationID)
	require.NotEmpty(t, out.ProactiveActions)
	require.Equal(t, "upcoming_payments", out.ProactiveActions[0].Rule)

	conv, err := a.GetHistory(context.Background(), "user_001")
	require.NoError(t, err)
	require.NotNil(t, conv)
	require.Equal(t, out.ConversationID, conv.ID)
	require.Len(t, conv.Messages, 2)
	require.Equal(t, domain.SenderUser, conv.Messages[0].Sender)
	require.Equal(t, "When is my next payment?", conv.Messages[0].Content)
	require.Equal(t, domain.SenderAssistant, conv.Messages[1].Sender)
	require.Equal(t, out.Response, conv.Messages[1].Content)
	require.Equal(t, domain.IntentPaymentEnquiry, conv.Context.LastIntent)
}

func TestProcessMessage_ContextCarriesAcrossTurns(t *testing.T) {
	d := newDeps(t)
	a := d.build(t)
	ctx := context.Background()

	first, err := a.ProcessMessage(ctx, MessageInput{UserID: "user_002", Message: "I just lost my job"})
	require.NoError(t, err)
	second, err := a.ProcessMessage(ctx, MessageInput{UserID: "user_002", Message: "thanks"})
	require.NoError(t, err)
	require.Equal(t, first.ConversationID, second.ConversationID)

	conv, err := a.GetHistory(ctx, "user_002")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 4)
	require.Equal(t, domain.JobLoss, conv.Context.DetectedLifeEvent)
}

func TestProcessMessage_UnknownUserStillAnswers(t *testing.T) {
	d := newDeps(t)
	a := d.build(t)

	out, err := a.ProcessMessage(context.Background(), MessageInput{UserID: "visitor", Message: "hello"})
	require.NoError(t, err)
	require.Equal(t, policy.TypeGeneralHelp, out.Type)
	require.Nil(t, out.ProactiveActions)
	require.NotEmpty(t, out.ConversationID)
}

func TestProcessMessage_MessageCountGrowsByTwoPerTurn(t *testing.T) {
	phrases := []string{
		"When is my next payment?",
		"Am I eligible for family tax benefit?",
		"How do I apply?",
		"What documents do I need?",
		"We're having a baby",
		"hello",
	}
	rapid.Check(t, func(rt *rapid.T) {
		d := newDeps(rt)
		a := d.build(rt)
		sent := rapid.SliceOfN(rapid.SampledFrom(phrases), 1, 8).Draw(rt, "messages")

		for _, msg := range sent {
			_, err := a.ProcessMessage(context.Background(), MessageInput{UserID: "user_001", Message: msg})
			require.NoError(rt, err)
		}

		conv, err := a.GetHistory(context.Background(), "user_001")
		require.NoError(rt, err)
		require.Len(rt, conv.Messages, 2*len(sent))
		for i, msg := range sent {
			require.Equal(rt, domain.SenderUser, conv.Messages[2*i].Sender)
			require.Equal(rt, msg, conv.Messages[2*i].Content)
			require.Equal(rt, domain.SenderAssistant, conv.Messages[2*i+1].Sender)
		}
	})
}

func TestProcessMessage_ValidationLeavesStoreUntouched(t *testing.T) {
	d := newDeps(t)
	a := d.build(t, WithMaxMessageLength(10))

	cases := []struct {
		name   string
		in     MessageInput
		reason string
	}{
		{"missing user", MessageInput{Message: "hello"}, "user_id_required"},
		{"blank message", MessageInput{UserID: "user_001", Message: "   "}, "message_required"},
		{"too long", MessageInput{UserID: "user_001", Message: "this message is too long"}, "message_too_long"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := a.ProcessMessage(context.Background(), tc.in)
			var ue *Error
			require.ErrorAs(t, err, &ue)
			require.Equal(t, ErrorInvalidInput, ue.Code)
			require.Equal(t, tc.reason, ue.Reason)
		})
	}
	require.Zero(t, d.store.Len())
}

func TestProcessMessage_PanicBecomesApology(t *testing.T) {
	d := newDeps(t)
	d.policy = panickingResponder{}
	reg := prometheus.NewRegistry()
	a := d.build(t, WithMetrics(metrics.NewCollector("assistant", reg)))

	out, err := a.ProcessMessage(context.Background(), MessageInput{UserID: "user_001", Message: "hello"})
	require.NoError(t, err)
	require.Equal(t, policy.Apology().Content, out.Response)
	require.Equal(t, policy.TypeError, out.Type)
	require.Empty(t, out.ConversationID)
	require.Empty(t, out.Actions)
	require.Zero(t, d.store.Len())

	n, err := testutil.GatherAndCount(reg, "assistant_processing_errors_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestProcessMessage_DirectoryFailureBecomesApology(t *testing.T) {
	d := newDeps(t)
	a := d.build(t)
	ctx := context.Background()

	_, err := a.ProcessMessage(ctx, MessageInput{UserID: "user_001", Message: "hello"})
	require.NoError(t, err)

	d.dir = failingPayments{d.memory}
	broken := d.build(t)
	out, err := broken.ProcessMessage(ctx, MessageInput{UserID: "user_001", Message: "When is my next payment?"})
	require.NoError(t, err)
	require.Equal(t, policy.TypeError, out.Type)
	require.Empty(t, out.ConversationID)

	conv, err := a.GetHistory(ctx, "user_001")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
}

func TestProcessMessage_FirstTurnStoreFailureLeavesNothing(t *testing.T) {
	d := newDeps(t)
	d.wrapStore = func(st ConversationStore) ConversationStore { return failingCreate{st} }
	reg := prometheus.NewRegistry()
	a := d.build(t, WithMetrics(metrics.NewCollector("assistant", reg)))
	ctx := context.Background()

	out, err := a.ProcessMessage(ctx, MessageInput{UserID: "user_001", Message: "When is my next payment?"})
	require.NoError(t, err)
	require.Equal(t, policy.TypeError, out.Type)
	require.Empty(t, out.ConversationID)
	require.Zero(t, d.store.Len())
	conv, err := a.GetHistory(ctx, "user_001")
	require.NoError(t, err)
	require.Nil(t, conv)
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP assistant_processing_errors_total Turns that failed and were answered with an apology
# TYPE assistant_processing_errors_total counter
assistant_processing_errors_total{stage="persist"} 1
`), "assistant_processing_errors_total"))

	d.wrapStore = nil
	out, err = d.build(t).ProcessMessage(ctx, MessageInput{UserID: "user_001", Message: "When is my next payment?"})
	require.NoError(t, err)
	require.Equal(t, "payment_overview", out.Type)
	conv, err = a.GetHistory(ctx, "user_001")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
}

func TestProcessMessage_JoinsConversationCreatedConcurrently(t *testing.T) {
	d := newDeps(t)
	other := domain.Conversation{
		ID:     "conv_other",
		UserID: "user_001",
		Messages: []domain.Message{
			{ID: "msg_a", Content: "hello", Sender: domain.SenderUser, Timestamp: now},
			{ID: "msg_b", Content: "Hi", Sender: domain.SenderAssistant, Type: "general_help", Timestamp: now},
		},
		CreatedAt:   now,
		LastUpdated: now,
	}
	d.wrapStore = func(st ConversationStore) ConversationStore { return racingCreate{ConversationStore: st, other: other} }
	a := d.build(t)
	ctx := context.Background()

	out, err := a.ProcessMessage(ctx, MessageInput{UserID: "user_001", Message: "When is my next payment?"})
	require.NoError(t, err)
	require.Equal(t, "payment_overview", out.Type)
	require.Equal(t, "conv_other", out.ConversationID)

	conv, err := a.GetHistory(ctx, "user_001")
	require.NoError(t, err)
	require.Equal(t, "conv_other", conv.ID)
	require.Len(t, conv.Messages, 4)
	require.Equal(t, "msg_a", conv.Messages[0].ID)
	require.Equal(t, "When is my next payment?", conv.Messages[2].Content)
	require.Equal(t, domain.IntentPaymentEnquiry, conv.Context.LastIntent)
}

func TestProcessMessage_ConcurrentTurnsForOneUser(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := newDeps(t)
	a := d.build(t)

	const workers, turns = 8, 5
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < turns; i++ {
				msg := fmt.Sprintf("hello %d-%d", w, i)
				_, err := a.ProcessMessage(context.Background(), MessageInput{UserID: "user_001", Message: msg})
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	conv, err := a.GetHistory(context.Background(), "user_001")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2*workers*turns)
	for i := 0; i < len(conv.Messages); i += 2 {
		require.Equal(t, domain.SenderUser, conv.Messages[i].Sender)
		require.Equal(t, domain.SenderAssistant, conv.Messages[i+1].Sender)
	}
	require.Zero(t, a.locks.size())
}

func TestGetHistoryAndClear(t *testing.T) {
	d := newDeps(t)
	a := d.build(t)
	ctx := context.Background()

	conv, err := a.GetHistory(ctx, "user_001")
	require.NoError(t, err)
	require.Nil(t, conv)

	_, err = a.ProcessMessage(ctx, MessageInput{UserID: "user_001", Message: "hello"})
	require.NoError(t, err)
	require.NoError(t, a.ClearHistory(ctx, "user_001"))

	conv, err = a.GetHistory(ctx, "user_001")
	require.NoError(t, err)
	require.Nil(t, conv)

	require.Equal(t, ErrorInvalidInput, CodeOf(a.ClearHistory(ctx, " ")))
	_, err = a.GetHistory(ctx, "")
	require.Equal(t, ErrorInvalidInput, CodeOf(err))
}

func TestDispatchAction(t *testing.T) {
	d := newDeps(t)
	reg := prometheus.NewRegistry()
	a := d.build(t, WithMetrics(metrics.NewCollector("assistant", reg)))
	ctx := context.Background()

	res, err := a.DispatchAction(ctx, ActionInput{UserID: "user_001", Action: actions.CheckCCSEligibility})
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = a.DispatchAction(ctx, ActionInput{UserID: "user_001", Action: actions.ViewPaymentDetails, Data: map[string]any{"paymentId": "missing"}})
	require.NoError(t, err)
	require.False(t, res.Success)

	res, err = a.DispatchAction(ctx, ActionInput{UserID: "user_001", Action: "frobnicate"})
	require.Equal(t, ErrorUnknownAction, CodeOf(err))
	require.ErrorIs(t, err, actions.ErrUnknownAction)
	require.False(t, res.Success)
	require.Equal(t, "Unknown action", res.Error)
	require.Zero(t, d.store.Len())

	_, err = a.DispatchAction(ctx, ActionInput{UserID: "user_001"})
	require.Equal(t, ErrorInvalidInput, CodeOf(err))
	_, err = a.DispatchAction(ctx, ActionInput{Action: actions.CheckCCSEligibility})
	require.Equal(t, ErrorInvalidInput, CodeOf(err))

	n, err := testutil.GatherAndCount(reg, "assistant_actions_total")
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestProcessLifeEvent(t *testing.T) {
	d := newDeps(t)
	a := d.build(t)
	ctx := context.Background()

	out, err := a.ProcessLifeEvent(ctx, LifeEventInput{UserID: "user_001", Event: domain.JobLoss})
	require.NoError(t, err)
	require.True(t, out.Success)

	_, err = a.ProcessLifeEvent(ctx, LifeEventInput{UserID: "nobody", Event: domain.JobLoss})
	require.Equal(t, ErrorNotFound, CodeOf(err))

	_, err = a.ProcessLifeEvent(ctx, LifeEventInput{UserID: "user_001", Event: "moving_house"})
	require.Equal(t, ErrorInvalidInput, CodeOf(err))
}

func TestCheckEligibility(t *testing.T) {
	d := newDeps(t)
	a := d.build(t)
	ctx := context.Background()

	out, err := a.CheckEligibility(ctx, EligibilityInput{UserID: "user_001", PaymentType: domain.FamilyTaxBenefit})
	require.NoError(t, err)
	require.True(t, out.Eligible)
	require.InDelta(t, 191.24, out.EstimatedAmount, 0.001)

	out, err = a.CheckEligibility(ctx, EligibilityInput{UserID: "user_001", PaymentType: domain.AgePension})
	require.NoError(t, err)
	require.False(t, out.Eligible)
	require.Zero(t, out.EstimatedAmount)

	_, err = a.CheckEligibility(ctx, EligibilityInput{UserID: "nobody", PaymentType: domain.FamilyTaxBenefit})
	require.Equal(t, ErrorNotFound, CodeOf(err))

	_, err = a.CheckEligibility(ctx, EligibilityInput{UserID: "user_001"})
	require.Equal(t, ErrorInvalidInput, CodeOf(err))

	d.dir = throttledEligibility{d.memory}
	throttled := d.build(t)
	_, err = throttled.CheckEligibility(ctx, EligibilityInput{UserID: "user_001", PaymentType: domain.FamilyTaxBenefit})
	require.Equal(t, ErrorRateLimited, CodeOf(err))
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	require.Equal(t, 2, k.size())

	done := make(chan struct{})
	go func() {
		unlock := k.Lock("a")
		unlock()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second holder acquired a held key")
	case <-time.After(20 * time.Millisecond):
	}
	unlockA()
	<-done
	unlockB()
	require.Zero(t, k.size())
}

type panickingDispatcher struct{}

func (panickingDispatcher) Dispatch(context.Context, actions.Request) (actions.Result, error) {
	panic("boom")
}

func TestDispatchAction_PanicIsContained(t *testing.T) {
	d := newDeps(t)
	a, err := NewAssistant(d.analyzer, d.rules, d.policy, d.store, d.dir, panickingDispatcher{})
	require.NoError(t, err)

	res, err := a.DispatchAction(context.Background(), ActionInput{UserID: "user_001", Action: actions.ReportIssue})
	require.Equal(t, ErrorInternal, CodeOf(err))
	require.False(t, res.Success)
	require.Zero(t, a.locks.size())
}
