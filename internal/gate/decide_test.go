package gate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crypdick/pynchy-gate/internal/bashgate"
	"github.com/crypdick/pynchy-gate/internal/model"
)

var (
	clean      = model.TaintSnapshot{}
	corrupted  = model.TaintSnapshot{CorruptionTainted: true}
	secretOnly = model.TaintSnapshot{SecretTainted: true}
	trifecta   = model.TaintSnapshot{CorruptionTainted: true, SecretTainted: true}
)

func safeDecl() model.TrustDeclaration {
	return model.TrustDeclaration{
		PublicSource:    model.Safe,
		SecretData:      model.Safe,
		PublicSink:      model.Safe,
		DangerousWrites: model.Safe,
	}
}

func riskySink() model.TrustDeclaration {
	d := safeDecl()
	d.PublicSink = model.Risky
	return d
}

var levels = []model.TrustLevel{model.Safe, model.Risky, model.Forbidden}
var taints = []model.TaintSnapshot{clean, corrupted, secretOnly, trifecta}
var ops = []model.OperationKind{model.Read, model.Write}

func allDeclarations() []model.TrustDeclaration {
	var out []model.TrustDeclaration
	for _, a := range levels {
		for _, b := range levels {
			for _, c := range levels {
				for _, d := range levels {
					out = append(out, model.TrustDeclaration{PublicSource: a, SecretData: b, PublicSink: c, DangerousWrites: d})
				}
			}
		}
	}
	return out
}

func TestDecideMatrix(t *testing.T) {
	dangerous := safeDecl()
	dangerous.DangerousWrites = model.Risky
	vault := safeDecl()
	vault.DangerousWrites = model.Forbidden

	tests := []struct {
		name string
		decl model.TrustDeclaration
		t    model.TaintSnapshot
		op   model.OperationKind
		want model.Decision
	}{
		{"safe read", safeDecl(), clean, model.Read, model.Allow},
		{"safe write clean", safeDecl(), clean, model.Write, model.Allow},
		{"trusted sink after corruption", safeDecl(), corrupted, model.Write, model.Allow},
		{"risky sink clean", riskySink(), clean, model.Write, model.Allow},
		{"risky sink secret only", riskySink(), secretOnly, model.Write, model.Allow},
		{"risky sink corrupted", riskySink(), corrupted, model.Write, model.CopReview},
		{"risky sink trifecta", riskySink(), trifecta, model.Write, model.HumanApproval},
		{"dangerous write clean", dangerous, clean, model.Write, model.HumanApproval},
		{"dangerous read", dangerous, trifecta, model.Read, model.Allow},
		{"forbidden write", vault, clean, model.Write, model.Blocked},
		{"forbidden read", vault, clean, model.Read, model.Blocked},
		{"cautious write clean", model.CautiousDeclaration(), clean, model.Write, model.HumanApproval},
		{"cautious read", model.CautiousDeclaration(), clean, model.Read, model.Allow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide("cap", tt.decl, tt.t, tt.op)
			assert.Equal(t, tt.want, got.Decision, got.Reason)
			assert.NotEmpty(t, got.Reason)
			assert.NotEmpty(t, got.RuleID)
		})
	}
}

func TestForbiddenIsAbsolute(t *testing.T) {
	for _, d := range allDeclarations() {
		if d.FirstForbidden() == "" {
			continue
		}
		for _, ts := range taints {
			for _, op := range ops {
				got := Decide("cap", d, ts, op)
				require.Equal(t, model.Blocked, got.Decision, "%s %s %+v", d, op, ts)
			}
		}
	}
}

func TestDecideDeterministic(t *testing.T) {
	for _, d := range allDeclarations() {
		for _, ts := range taints {
			for _, op := range ops {
				first := Decide("cap", d, ts, op)
				for i := 0; i < 3; i++ {
					require.Equal(t, first, Decide("cap", d, ts, op))
				}
			}
		}
	}
}

func TestReadsNeverEscalate(t *testing.T) {
	for _, d := range allDeclarations() {
		if d.FirstForbidden() != "" {
			continue
		}
		for _, ts := range taints {
			got := Decide("cap", d, ts, model.Read)
			require.Equal(t, model.Allow, got.Decision, "%s %+v", d, ts)
		}
	}
}

func TestForbiddenReasonNamesAttribute(t *testing.T) {
	vault := safeDecl()
	vault.DangerousWrites = model.Forbidden
	got := Decide("vault", vault, clean, model.Write)
	assert.Equal(t, "blocked: vault dangerous_writes is forbidden", got.Reason)
	assert.Equal(t, "gate.forbidden.dangerous_writes", got.RuleID)
}

func TestDecideCommand(t *testing.T) {
	tests := []struct {
		name  string
		class bashgate.Classification
		t     model.TaintSnapshot
		want  model.Decision
	}{
		{"safe trifecta", bashgate.LocalSafe, trifecta, model.Allow},
		{"network clean", bashgate.NetworkCapable, clean, model.Allow},
		{"unknown secret only", bashgate.Unknown, secretOnly, model.Allow},
		{"unknown corrupted", bashgate.Unknown, corrupted, model.CopReview},
		{"network corrupted", bashgate.NetworkCapable, corrupted, model.CopReview},
		{"unknown trifecta", bashgate.Unknown, trifecta, model.HumanApproval},
		{"network trifecta", bashgate.NetworkCapable, trifecta, model.HumanApproval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecideCommand("bash", model.TrustDeclaration{}, tt.class, tt.t)
			assert.Equal(t, tt.want, got.Decision, got.Reason)
		})
	}
}

func TestDecideCommandForbiddenShell(t *testing.T) {
	shell := safeDecl()
	shell.PublicSink = model.Forbidden
	got := DecideCommand("bash", shell, bashgate.LocalSafe, clean)
	assert.Equal(t, model.Blocked, got.Decision)
}

func TestMapReview(t *testing.T) {
	flagged := model.ReviewVerdict{Flagged: true, Reason: "exfiltrates tokens"}
	unflagged := model.ReviewVerdict{}
	boom := errors.New("connection refused")

	tests := []struct {
		name string
		v    model.ReviewVerdict
		err  error
		t    model.TaintSnapshot
		mode model.ActionMode
		want model.Decision
	}{
		{"clean fire", unflagged, nil, corrupted, model.FireAndForget, model.Allow},
		{"clean request", unflagged, nil, trifecta, model.RequestReply, model.Allow},
		{"flagged trifecta fire", flagged, nil, trifecta, model.FireAndForget, model.HumanApproval},
		{"flagged trifecta request", flagged, nil, trifecta, model.RequestReply, model.HumanApproval},
		{"flagged single fire", flagged, nil, corrupted, model.FireAndForget, model.Blocked},
		{"flagged single request", flagged, nil, corrupted, model.RequestReply, model.HumanApproval},
		{"error fire", model.ReviewVerdict{}, boom, corrupted, model.FireAndForget, model.Allow},
		{"error request", model.ReviewVerdict{}, boom, corrupted, model.RequestReply, model.HumanApproval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapReview(tt.v, tt.err, tt.t, tt.mode)
			assert.Equal(t, tt.want, got.Decision, got.Reason)
		})
	}
}

func TestMapReviewCarriesReviewerReason(t *testing.T) {
	got := MapReview(model.ReviewVerdict{Flagged: true, Reason: "posts api key"}, nil, corrupted, model.FireAndForget)
	assert.Contains(t, got.Reason, "posts api key")
}
