package ingestion

import (
	"errors"
	"testing"
)

func TestValidateJobTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    JobStatus
		to      JobStatus
		wantErr error
	}{
		{"queued to running", JobQueued, JobRunning, nil},
		{"running to done", JobRunning, JobDone, nil},
		{"running to failed", JobRunning, JobFailed, nil},
		{"running to deadletter", JobRunning, JobDeadletter, nil},
		{"failed requeued", JobFailed, JobQueued, nil},
		{"failed to deadletter", JobFailed, JobDeadletter, nil},
		{"done idempotent", JobDone, JobDone, nil},
		{"deadletter idempotent", JobDeadletter, JobDeadletter, nil},
		{"queued to done skips running", JobQueued, JobDone, ErrInvalidTransition},
		{"running back to queued", JobRunning, JobQueued, ErrInvalidTransition},
		{"done to queued", JobDone, JobQueued, ErrTerminalStateImmutable},
		{"deadletter to running", JobDeadletter, JobRunning, ErrTerminalStateImmutable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJobTransition(tt.from, tt.to)

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateJobTransition(%s, %s) = %v, want nil", tt.from, tt.to, err)
				}

				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateJobTransition(%s, %s) = %v, want %v", tt.from, tt.to, err, tt.wantErr)
			}
		})
	}
}

func TestNextStatusAfterFailure(t *testing.T) {
	tests := []struct {
		name         string
		attemptCount int
		maxAttempts  int
		want         JobStatus
	}{
		{"first failure", 1, 3, JobFailed},
		{"second failure", 2, 3, JobFailed},
		{"budget exhausted", 3, 3, JobDeadletter},
		{"over budget", 4, 3, JobDeadletter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextStatusAfterFailure(tt.attemptCount, tt.maxAttempts); got != tt.want {
				t.Errorf("NextStatusAfterFailure(%d, %d) = %s, want %s", tt.attemptCount, tt.maxAttempts, got, tt.want)
			}
		})
	}
}

func TestJobStatusIsTerminal(t *testing.T) {
	terminal := map[JobStatus]bool{
		JobQueued:     false,
		JobRunning:    false,
		JobDone:       true,
		JobFailed:     false,
		JobDeadletter: true,
	}

	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}
