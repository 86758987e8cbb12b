package engine

import (
	"testing"

	"crease/internal/domain"
)

func TestClassifyDelivery(t *testing.T) {
	cases := []struct {
		name    string
		in      DeliveryInput
		want    ballEffect
		wantErr bool
	}{
		{
			name: "plain boundary",
			in:   DeliveryInput{RunsOffBat: 4},
			want: ballEffect{legal: true, batRuns: 4, rotationRuns: 4, bowlerRuns: 4, total: 4},
		},
		{
			name: "wide with no runs",
			in:   DeliveryInput{Extra: domain.ExtraWide},
			want: ballEffect{extraType: domain.ExtraWide, extraRuns: 1, bowlerRuns: 1, total: 1},
		},
		{
			name: "wide run twice",
			in:   DeliveryInput{Extra: domain.ExtraWide, ExtraRuns: 2},
			want: ballEffect{extraType: domain.ExtraWide, extraRuns: 3, rotationRuns: 2, bowlerRuns: 3, total: 3},
		},
		{
			name: "no-ball hit for six",
			in:   DeliveryInput{Extra: domain.ExtraNoBall, RunsOffBat: 6},
			want: ballEffect{extraType: domain.ExtraNoBall, batRuns: 6, extraRuns: 1, rotationRuns: 6, bowlerRuns: 7, total: 7},
		},
		{
			name: "leg byes",
			in:   DeliveryInput{Extra: domain.ExtraLegBye, ExtraRuns: 3},
			want: ballEffect{legal: true, extraType: domain.ExtraLegBye, extraRuns: 3, rotationRuns: 3, total: 3},
		},
		{
			name: "penalty on a plain ball",
			in:   DeliveryInput{RunsOffBat: 1, PenaltyRuns: 5},
			want: ballEffect{legal: true, batRuns: 1, penaltyRuns: 5, rotationRuns: 1, bowlerRuns: 1, total: 6},
		},
		{name: "off-bat runs on a wide", in: DeliveryInput{Extra: domain.ExtraWide, RunsOffBat: 1}, wantErr: true},
		{name: "extra runs on a no-ball", in: DeliveryInput{Extra: domain.ExtraNoBall, ExtraRuns: 1}, wantErr: true},
		{name: "zero-run bye", in: DeliveryInput{Extra: domain.ExtraBye}, wantErr: true},
		{name: "extra runs without extra type", in: DeliveryInput{ExtraRuns: 2}, wantErr: true},
		{name: "unknown extra", in: DeliveryInput{Extra: "overthrow"}, wantErr: true},
		{name: "negative runs", in: DeliveryInput{RunsOffBat: -1}, wantErr: true},
		{name: "runs out of range", in: DeliveryInput{RunsOffBat: 7}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := classifyDelivery(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("classify(%+v) accepted", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("classify(%+v): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("classify(%+v) = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}

func TestValidateDismissal(t *testing.T) {
	cases := []struct {
		name    string
		in      DeliveryInput
		freeHit bool
		want    string
		wantErr bool
	}{
		{
			name: "bowled defaults to the striker",
			in:   DeliveryInput{Wicket: true, DismissalType: domain.DismissalBowled},
			want: "s1",
		},
		{
			name: "run out of the non-striker",
			in:   DeliveryInput{Wicket: true, DismissalType: domain.DismissalRunOut, DismissedID: "n1"},
			want: "n1",
		},
		{
			name:    "caught cannot dismiss the non-striker",
			in:      DeliveryInput{Wicket: true, DismissalType: domain.DismissalCaught, DismissedID: "n1"},
			wantErr: true,
		},
		{
			name:    "bowled impossible on a wide",
			in:      DeliveryInput{Wicket: true, Extra: domain.ExtraWide, DismissalType: domain.DismissalBowled},
			wantErr: true,
		},
		{
			name: "stumped stays live on a wide",
			in:   DeliveryInput{Wicket: true, Extra: domain.ExtraWide, DismissalType: domain.DismissalStumped},
			want: "s1",
		},
		{
			name:    "stumped impossible on a no-ball",
			in:      DeliveryInput{Wicket: true, Extra: domain.ExtraNoBall, DismissalType: domain.DismissalStumped},
			wantErr: true,
		},
		{
			name:    "caught impossible on a free hit",
			in:      DeliveryInput{Wicket: true, DismissalType: domain.DismissalCaught},
			freeHit: true,
			wantErr: true,
		},
		{
			name:    "run out survives a free hit",
			in:      DeliveryInput{Wicket: true, DismissalType: domain.DismissalRunOut},
			freeHit: true,
			want:    "s1",
		},
		{
			name:    "dismissed player not at the crease",
			in:      DeliveryInput{Wicket: true, DismissalType: domain.DismissalRunOut, DismissedID: "x9"},
			wantErr: true,
		},
		{
			name:    "dismissal fields without a wicket",
			in:      DeliveryInput{DismissalType: domain.DismissalBowled},
			wantErr: true,
		},
		{
			name:    "unknown dismissal",
			in:      DeliveryInput{Wicket: true, DismissalType: "retired"},
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := validateDismissal(tc.in, "s1", "n1", tc.freeHit)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("accepted %+v", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("rejected %+v: %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("dismissed = %s, want %s", got, tc.want)
			}
		})
	}
}
