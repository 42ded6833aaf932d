package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

type mockSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (m *mockSES) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.input = params
	if m.err != nil {
		return nil, m.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-msg-1")}, nil
}

func TestSESSenderSend(t *testing.T) {
	mock := &mockSES{}
	sender := NewSESSender(mock, SESConfig{FromEmail: "noreply@pulseops.example", FromName: "PulseOps Alerts"}, nil)
	if sender == nil {
		t.Fatal("expected configured sender")
	}

	err := sender.Send(context.Background(), EmailMessage{
		To:      "clinic@example.com",
		Subject: "Queue closed",
		Body:    "summary",
		HTML:    "<p>summary</p>",
	})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	if mock.input == nil {
		t.Fatal("expected SendEmail to be called")
	}
	if got := aws.ToString(mock.input.FromEmailAddress); got != "PulseOps Alerts <noreply@pulseops.example>" {
		t.Fatalf("from address = %q", got)
	}
	if got := mock.input.Destination.ToAddresses; len(got) != 1 || got[0] != "clinic@example.com" {
		t.Fatalf("to addresses = %v", got)
	}
	simple := mock.input.Content.Simple
	if got := aws.ToString(simple.Subject.Data); got != "Queue closed" {
		t.Fatalf("subject = %q", got)
	}
	if simple.Body.Text == nil || aws.ToString(simple.Body.Text.Data) != "summary" {
		t.Fatal("expected text body to be set")
	}
	if simple.Body.Html == nil || aws.ToString(simple.Body.Html.Data) != "<p>summary</p>" {
		t.Fatal("expected html body to be set")
	}
}

func TestSESSenderDefaultFromName(t *testing.T) {
	sender := NewSESSender(&mockSES{}, SESConfig{FromEmail: "noreply@pulseops.example"}, nil)
	if sender.fromName != "PulseOps" {
		t.Fatalf("default from name = %q", sender.fromName)
	}
}

func TestSESSenderSurfacesFailure(t *testing.T) {
	sender := NewSESSender(&mockSES{err: errors.New("rate exceeded")}, SESConfig{FromEmail: "noreply@pulseops.example"}, nil)

	if err := sender.Send(context.Background(), EmailMessage{To: "clinic@example.com"}); err == nil {
		t.Fatal("expected SES failure to surface")
	}
}

func TestNewSESSenderRequiresClient(t *testing.T) {
	if s := NewSESSender(nil, SESConfig{FromEmail: "noreply@pulseops.example"}, nil); s != nil {
		t.Fatal("expected nil sender without client")
	}
}

func TestNewSendGridSenderRequiresAPIKey(t *testing.T) {
	if s := NewSendGridSender(SendGridConfig{FromEmail: "noreply@pulseops.example"}, nil); s != nil {
		t.Fatal("expected nil sender without api key")
	}
}

func TestNewSendGridSenderDefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "key", FromEmail: "noreply@pulseops.example"}, nil)
	if sender == nil {
		t.Fatal("expected configured sender")
	}
	if sender.fromName != "PulseOps" {
		t.Fatalf("default from name = %q", sender.fromName)
	}
}

func TestStubEmailSenderAlwaysSucceeds(t *testing.T) {
	sender := NewStubEmailSender(nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "clinic@example.com"}); err != nil {
		t.Fatalf("stub send returned error: %v", err)
	}
}
