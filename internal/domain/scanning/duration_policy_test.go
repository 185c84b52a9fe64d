package scanning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationPolicy_ShouldTerminate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		policy      DurationPolicy
		resultCount int
		want        bool
	}{
		{name: "owner end with targets", policy: StopOnOwnerEnd, resultCount: 3, want: false},
		{name: "owner end without targets", policy: StopOnOwnerEnd, resultCount: 0, want: false},
		{name: "duration with targets", policy: StopAfterDuration, resultCount: 3, want: false},
		{name: "duration without targets", policy: StopAfterDuration, resultCount: 0, want: false},
		{name: "target found with targets", policy: StopOnFirstTargetFound, resultCount: 1, want: true},
		{name: "target found without targets", policy: StopOnFirstTargetFound, resultCount: 0, want: false},
		{name: "no target found with targets", policy: StopOnNoTargetFound, resultCount: 2, want: false},
		{name: "no target found without targets", policy: StopOnNoTargetFound, resultCount: 0, want: true},
		{name: "once with targets", policy: RunOnce, resultCount: 5, want: true},
		{name: "once without targets", policy: RunOnce, resultCount: 0, want: true},
		{name: "unknown policy", policy: DurationPolicy("FOREVER"), resultCount: 0, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.policy.ShouldTerminate(tt.resultCount))
		})
	}
}

func TestParseDurationPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    DurationPolicy
		wantErr bool
	}{
		{input: "ABILITY", want: StopOnOwnerEnd},
		{input: "owner_end", want: StopOnOwnerEnd},
		{input: "duration", want: StopAfterDuration},
		{input: "TARGET_FOUND", want: StopOnFirstTargetFound},
		{input: "no_target_found", want: StopOnNoTargetFound},
		{input: "once", want: RunOnce},
		{input: "sometimes", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDurationPolicy(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.IsValid())
		})
	}
}
