package actions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"citizen-assistant/internal/directory"
	"citizen-assistant/internal/domain"
)

var now = time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC)

func newTestDispatcher(t *testing.T) (*Dispatcher, *directory.Memory) {
	t.Helper()
	dir := directory.NewDemo(now, directory.WithClock(func() time.Time { return now }))
	d, err := New(dir,
		WithClock(func() time.Time { return now }),
		WithIDGenerator(func() string { return "abc123def456" }),
		WithAssessor("Jane Citizen"),
	)
	require.NoError(t, err)
	return d, dir
}

func TestNew_NilDirectory(t *testing.T) {
	_, err := New(nil)
	require.ErrorContains(t, err, "must not be nil")
}

func TestNames(t *testing.T) {
	d, _ := newTestDispatcher(t)
	names := d.Names()
	require.Len(t, names, 12)
	require.Contains(t, names, CheckCCSEligibility)
	require.IsNonDecreasing(t, names)
}

func TestDispatch_UnknownActionLeavesDirectoryUntouched(t *testing.T) {
	d, dir := newTestDispatcher(t)
	ctx := context.Background()
	before, err := dir.GetApplication(ctx, "app_001")
	require.NoError(t, err)

	res, err := d.Dispatch(ctx, Request{UserID: "user_001", Action: "frobnicate", Data: map[string]any{"applicationId": "app_001"}})
	require.ErrorIs(t, err, ErrUnknownAction)
	require.Equal(t, Result{Success: false, Error: "Unknown action"}, res)

	after, err := dir.GetApplication(ctx, "app_001")
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestCCSSubsidy(t *testing.T) {
	low := CCSSubsidy(45000)
	require.Equal(t, 85, low.Percentage)
	require.InDelta(t, 10.63, low.HourlyRate, 0.011)
	require.Equal(t, 10000.0, low.AnnualCap)

	// 150000 income: 0.85 - 0.3 = 0.55.
	mid := CCSSubsidy(150000)
	require.Equal(t, 55, mid.Percentage)
	require.Equal(t, 5000.0, mid.AnnualCap)

	high := CCSSubsidy(1_000_000)
	require.Equal(t, 20, high.Percentage)
	require.InDelta(t, 2.5, high.HourlyRate, 1e-9)
}

func TestCCSSubsidy_BoundedProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		income := rapid.Float64Range(0, 2_000_000).Draw(t, "income")
		s := CCSSubsidy(income)
		if s.Percentage < 20 || s.Percentage > 85 {
			t.Fatalf("percentage %d out of range for income %v", s.Percentage, income)
		}
		if higher := CCSSubsidy(income + 10000); higher.Percentage > s.Percentage {
			t.Fatalf("subsidy increased with income: %d -> %d", s.Percentage, higher.Percentage)
		}
	})
}

func TestDispatch_CCSEligibility(t *testing.T) {
	d, _ := newTestDispatcher(t)
	res, err := d.Dispatch(context.Background(), Request{UserID: "user_001", Action: CheckCCSEligibility})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, CheckCCSEligibility, res.Action)
	elig := res.Data["eligibility"].(map[string]any)
	require.Equal(t, 85, elig["estimatedSubsidy"].(Subsidy).Percentage)

	res, err = d.Dispatch(context.Background(), Request{UserID: "nobody", Action: CheckCCSEligibility})
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, "User not found", res.Message)
}

func TestDispatch_ApplicationStatusAdvances(t *testing.T) {
	d, dir := newTestDispatcher(t)
	ctx := context.Background()
	req := Request{UserID: "user_001", Action: CheckApplicationStatus, Data: map[string]any{"applicationId": "app_001"}}

	res, err := d.Dispatch(ctx, req)
	require.NoError(t, err)
	require.Equal(t, "Your application is currently being reviewed by our assessors.", res.Message)
	app, _ := dir.GetApplication(ctx, "app_001")
	require.Equal(t, domain.ApplicationInReview, app.Status)

	res, err = d.Dispatch(ctx, req)
	require.NoError(t, err)
	require.Equal(t, "Great news! Your application has been approved.", res.Message)
	update := res.Data["update"].(map[string]any)
	require.Equal(t, "$1,500.00", update["approvedAmount"])
	require.Equal(t, "24/01/2024", update["nextPaymentDate"])
	app, _ = dir.GetApplication(ctx, "app_001")
	require.Equal(t, domain.ApplicationApproved, app.Status)
	require.Equal(t, "Jane Citizen", app.Assessor)

	res, err = d.Dispatch(ctx, req)
	require.NoError(t, err)
	require.Equal(t, "Your application status is: approved", res.Message)
	require.NotContains(t, res.Data, "update")

	res, err = d.Dispatch(ctx, Request{UserID: "user_001", Action: CheckApplicationStatus, Data: map[string]any{"applicationId": "app_999"}})
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, "Application not found", res.Message)
}

func TestDispatch_PaymentDetailsAndHistory(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()
	res, err := d.Dispatch(ctx, Request{UserID: "user_001", Action: ViewPaymentDetails, Data: map[string]any{"paymentId": "payment_001"}})
	require.NoError(t, err)
	require.True(t, res.Success)
	history := res.Data["history"].([]HistoryEntry)
	require.Len(t, history, 6)
	require.Equal(t, "hist_5", history[0].ID)
	require.Equal(t, now, history[5].Date)
	require.True(t, history[0].Date.Before(history[5].Date))
	require.Equal(t, 191.24, history[0].Amount)

	res, err = d.Dispatch(ctx, Request{UserID: "user_001", Action: ViewPaymentHistory, Data: map[string]any{"paymentId": "missing"}})
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, "Payment not found", res.Message)
}

func TestDispatch_ProcessPaymentReschedules(t *testing.T) {
	d, dir := newTestDispatcher(t)
	ctx := context.Background()
	res, err := d.Dispatch(ctx, Request{UserID: "user_001", Action: ProcessPayment, Data: map[string]any{"paymentId": "payment_001"}})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Contains(t, res.Message, "$191.24")
	processing := res.Data["processing"].(map[string]any)
	require.Equal(t, "TXN_abc123def456", processing["transactionId"])
	require.Equal(t, "CONF_ABC123DEF", processing["confirmationNumber"])

	p, err := dir.GetPayment(ctx, "payment_001")
	require.NoError(t, err)
	require.Equal(t, now.Add(14*24*time.Hour), p.NextPaymentDate)
}

func TestDispatch_ReportIssueAndUpdateDetails(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()
	res, err := d.Dispatch(ctx, Request{UserID: "user_001", Action: ReportIssue, Data: map[string]any{"paymentId": "payment_001"}})
	require.NoError(t, err)
	report := res.Data["issueReport"].(map[string]any)
	require.Equal(t, "issue_abc123def456", report["id"])
	require.Equal(t, "payment_not_received", report["type"])

	res, err = d.Dispatch(ctx, Request{UserID: "user_001", Action: UpdateDetails, Data: map[string]any{"paymentId": "payment_001"}})
	require.NoError(t, err)
	require.Len(t, res.Data["options"], 3)
}

func TestDispatch_UpcomingPayments(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()
	res, err := d.Dispatch(ctx, Request{UserID: "user_001", Action: ViewUpcomingPayments})
	require.NoError(t, err)
	details := res.Data["paymentDetails"].([]upcomingPayment)
	require.Len(t, details, 2)
	require.Equal(t, 2, details[0].DaysUntil)

	res, err = d.Dispatch(ctx, Request{UserID: "user_001", Action: ViewUpcomingPayments, Data: map[string]any{"paymentIds": []any{"payment_002"}}})
	require.NoError(t, err)
	details = res.Data["paymentDetails"].([]upcomingPayment)
	require.Len(t, details, 1)
	require.Equal(t, "payment_002", details[0].ID)
}

func TestDispatch_EligibilityGuidance(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()
	res, err := d.Dispatch(ctx, Request{UserID: "user_001", Action: CheckEligibilityGuidance, Data: map[string]any{"suggestedServices": []string{"School Kids Bonus"}}})
	require.NoError(t, err)
	info := res.Data["eligibilityInfo"].([]serviceGuidance)
	require.Len(t, info, 1)
	require.Equal(t, 200.0, info[0].EstimatedAmount)

	res, err = d.Dispatch(ctx, Request{UserID: "user_001", Action: CheckEligibilityGuidance})
	require.NoError(t, err)
	require.NotEmpty(t, res.Data["eligibilityInfo"])

	res, err = d.Dispatch(ctx, Request{UserID: "nobody", Action: CheckEligibilityGuidance})
	require.NoError(t, err)
	require.False(t, res.Success)
}

func TestDispatch_RemindersAndAppointments(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()
	res, err := d.Dispatch(ctx, Request{UserID: "user_001", Action: SetupReminders})
	require.NoError(t, err)
	reminders := res.Data["reminderOptions"].([]reminder)
	require.Len(t, reminders, 3)
	require.Len(t, reminders[0].ReminderOptions, 3)

	res, err = d.Dispatch(ctx, Request{UserID: "user_001", Action: AppointmentGuidance})
	require.NoError(t, err)
	appts := res.Data["appointmentInfo"].([]appointment)
	require.Len(t, appts, 1)
	require.True(t, appts[0].RequiresAppointment)
}

func TestDispatch_ContextualRecommendations(t *testing.T) {
	d, _ := newTestDispatcher(t)
	res, err := d.Dispatch(context.Background(), Request{UserID: "user_001", Action: ContextualRecommendations})
	require.NoError(t, err)
	require.Equal(t, "Based on your profile and usage patterns, I have 2 personalized recommendations for you.", res.Message)
}

type failingDirectory struct{ *directory.Memory }

func (failingDirectory) GetPayment(context.Context, string) (*domain.Payment, error) {
	return nil, errors.New("connection reset")
}

func TestDispatch_DirectoryFailureIsReturned(t *testing.T) {
	d, err := New(failingDirectory{directory.NewMemory()})
	require.NoError(t, err)
	_, err = d.Dispatch(context.Background(), Request{UserID: "u", Action: ViewPaymentDetails, Data: map[string]any{"paymentId": "p"}})
	require.ErrorContains(t, err, "view_payment_details")
	require.ErrorContains(t, err, "connection reset")
}

func TestDispatch_OtherUsersRecordsAreNotFound(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		action  string
		data    map[string]any
		message string
	}{
		{"application status", "user_002", CheckApplicationStatus, map[string]any{"applicationId": "app_001"}, "Application not found"},
		{"payment details", "user_002", ViewPaymentDetails, map[string]any{"paymentId": "payment_001"}, "Payment not found"},
		{"payment history", "user_003", ViewPaymentHistory, map[string]any{"paymentId": "payment_002"}, "Payment not found"},
		{"update details", "user_001", UpdateDetails, map[string]any{"paymentId": "payment_003"}, "Payment not found"},
		{"process payment", "user_003", ProcessPayment, map[string]any{"paymentId": "payment_001"}, "Payment not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, dir := newTestDispatcher(t)
			ctx := context.Background()
			appBefore, err := dir.GetApplication(ctx, "app_001")
			require.NoError(t, err)
			payBefore, err := dir.GetPayment(ctx, "payment_001")
			require.NoError(t, err)

			for i := 0; i < 2; i++ {
				res, err := d.Dispatch(ctx, Request{UserID: tt.userID, Action: tt.action, Data: tt.data})
				require.NoError(t, err)
				require.False(t, res.Success)
				require.Equal(t, tt.message, res.Message)
				require.Nil(t, res.Data)
			}

			appAfter, err := dir.GetApplication(ctx, "app_001")
			require.NoError(t, err)
			require.Equal(t, appBefore.Status, appAfter.Status)
			payAfter, err := dir.GetPayment(ctx, "payment_001")
			require.NoError(t, err)
			require.Equal(t, payBefore.NextPaymentDate, payAfter.NextPaymentDate)
		})
	}
}
