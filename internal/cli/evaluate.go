package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crypdick/pynchy-gate/internal/config"
	"github.com/crypdick/pynchy-gate/internal/model"
	"github.com/crypdick/pynchy-gate/internal/policy"
)

var (
	evalOperation string
	evalSession   string
	evalWorkspace string
	evalMode      string
	evalPayload   string
	evalLocal     bool
	evalDryRun    bool
	evalTimeout   time.Duration
	evalFormat    string
)

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().StringVarP(&evalOperation, "operation", "o", "write", "Operation kind (read|write)")
	evaluateCmd.Flags().StringVarP(&evalSession, "session", "s", "", "Session id (default: a new random id)")
	evaluateCmd.Flags().StringVarP(&evalWorkspace, "workspace", "w", "default", "Workspace id")
	evaluateCmd.Flags().StringVar(&evalMode, "mode", "", "Action mode (fire_and_forget|request_reply)")
	evaluateCmd.Flags().StringVarP(&evalPayload, "payload", "p", "", "Action payload; the command for the shell capability")
	evaluateCmd.Flags().BoolVar(&evalLocal, "local", false, "Evaluate in-process instead of against a running server")
	evaluateCmd.Flags().BoolVar(&evalDryRun, "dry-run", false, "Print the gate decision only; no taint, rate or audit side effects")
	evaluateCmd.Flags().DurationVar(&evalTimeout, "timeout", 0, "Give up waiting after this long (default: the approval timeout)")
	evaluateCmd.Flags().StringVarP(&evalFormat, "format", "f", "text", "Output format (text|json)")
	evaluateCmd.Flags().StringVar(&serverAddr, "addr", "", "Gate server address (default from config)")
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <capability>",
	Short: "Evaluate one action against the gate",
	Long: "Sends one action descriptor through the gate and prints the result. By default the\n" +
		"action goes to a running server; --local evaluates it in-process and --dry-run only\n" +
		"reports the gate decision. Exits 1 when the action is denied.",
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	a := model.Action{
		Capability:  args[0],
		Operation:   model.ParseOperation(evalOperation),
		SessionID:   evalSession,
		WorkspaceID: evalWorkspace,
		Mode:        model.ActionMode(evalMode),
		Payload:     evalPayload,
	}
	if a.SessionID == "" {
		a.SessionID = uuid.NewString()
	}
	out := cmd.OutOrStdout()

	if evalDryRun {
		cfg, hash, err := config.LoadWithHash(configPath)
		if err != nil {
			return err
		}
		v := policy.New(policy.Options{Snapshot: policy.NewSnapshot(cfg, hash)}).Check(a)
		if evalFormat == "json" {
			return writeJSON(out, map[string]string{"decision": string(v.Decision), "reason": v.Reason, "rule": v.RuleID})
		}
		fmt.Fprintf(out, "%s: %s\n", v.Decision, v.Reason)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if evalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, evalTimeout)
		defer cancel()
	}

	var (
		res model.PolicyResult
		err error
	)
	if evalLocal {
		res, err = evaluateLocal(ctx, a, cmd.ErrOrStderr())
	} else {
		res, err = evaluateRemote(ctx, a)
	}
	if err != nil {
		return err
	}

	if evalFormat == "json" {
		if err := writeJSON(out, res); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "%s (%s): %s\n", res.Outcome, res.Kind, res.Reason)
	}
	return res.Err()
}

func evaluateRemote(ctx context.Context, a model.Action) (model.PolicyResult, error) {
	c, err := dial()
	if err != nil {
		return model.PolicyResult{}, err
	}
	defer c.Close()
	return c.Evaluate(ctx, a), nil
}

func evaluateLocal(ctx context.Context, a model.Action, status io.Writer) (model.PolicyResult, error) {
	st, err := buildStack(configPath)
	if err != nil {
		return model.PolicyResult{}, err
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	if err := st.start(gctx, g); err != nil {
		return model.PolicyResult{}, err
	}

	res := st.engine.Evaluate(gctx, a, policy.OnPending(func(p model.PolicyResult) {
		fmt.Fprintf(status, "waiting for approval %s: reply 'approve %s' or 'deny %s' in workspace %s\n",
			p.ApprovalCode, p.ApprovalCode, p.ApprovalCode, a.WorkspaceID)
	}))

	cancel()
	_ = g.Wait()
	return res, nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
