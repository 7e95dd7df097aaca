package domain

import (
	"testing"
	"time"
)

func TestAccessVerifyValidate(t *testing.T) {
	cases := []struct {
		name    string
		req     AccessVerify
		wantErr bool
	}{
		{"valid", AccessVerify{SeminarID: "S1", Email: "a@x.com", Code: "123456"}, false},
		{"missing seminar", AccessVerify{Email: "a@x.com", Code: "123456"}, true},
		{"missing email", AccessVerify{SeminarID: "S1", Code: "123456"}, true},
		{"bad email", AccessVerify{SeminarID: "S1", Email: "nope", Code: "123456"}, true},
		{"short code", AccessVerify{SeminarID: "S1", Email: "a@x.com", Code: "123"}, true},
		{"alpha code", AccessVerify{SeminarID: "S1", Email: "a@x.com", Code: "12a456"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestAccessRequestNormalize(t *testing.T) {
	req := AccessRequest{SeminarID: " S1 ", Email: "  A@X.COM "}
	req.Normalize()
	if req.SeminarID != "S1" || req.Email != "a@x.com" {
		t.Fatalf("unexpected normalization: %+v", req)
	}
}

func TestChallengeCanAttempt(t *testing.T) {
	now := time.Now()
	live := VerificationChallenge{ExpiresAt: now.Add(time.Minute)}
	if !live.CanAttempt(5) {
		t.Fatal("live challenge should accept attempts")
	}

	expired := VerificationChallenge{ExpiresAt: now.Add(-time.Minute)}
	if expired.CanAttempt(5) {
		t.Fatal("expired challenge must not accept attempts")
	}

	consumed := VerificationChallenge{ExpiresAt: now.Add(time.Minute), ConsumedAt: &now}
	if consumed.CanAttempt(5) {
		t.Fatal("consumed challenge must not accept attempts")
	}

	capped := VerificationChallenge{ExpiresAt: now.Add(time.Minute), Attempts: 5}
	if capped.CanAttempt(5) {
		t.Fatal("challenge at the attempt cap must not accept attempts")
	}
}
