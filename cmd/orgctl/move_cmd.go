package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"organiflow/api/internal/gesture"
	"organiflow/api/internal/hierarchy"
	"organiflow/api/internal/orgsync"
)

type moveOptions struct {
	Policy string
	Mode   string
}

func newMoveCmd(opts *rootOptions) *cobra.Command {
	var mo moveOptions

	cmd := &cobra.Command{
		Use:   "move SOURCE_ID TARGET_ID",
		Short: "Drop one employee onto another and save the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := parseID(args[0])
			if err != nil {
				return err
			}
			target, err := parseID(args[1])
			if err != nil {
				return err
			}
			return runGesture(cmd, opts, mo, gesture.SwapEnd{
				FromSlot:   "node-id-" + args[0],
				ToSlot:     "node-id-" + args[1],
				HasChanged: source != target,
			})
		},
	}
	addMoveFlags(cmd, &mo)
	return cmd
}

func newDropCmd(opts *rootOptions) *cobra.Command {
	var (
		mo       moveOptions
		fromSlot string
		toSlot   string
	)

	cmd := &cobra.Command{
		Use:   "drop --from-slot <slot> --to-slot <slot>",
		Short: "Replay a drag-and-drop event from the tree renderer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireValue("from-slot", fromSlot); err != nil {
				return err
			}
			if err := requireValue("to-slot", toSlot); err != nil {
				return err
			}
			return runGesture(cmd, opts, mo, gesture.SwapEnd{FromSlot: fromSlot, ToSlot: toSlot, HasChanged: true})
		},
	}
	cmd.Flags().StringVar(&fromSlot, "from-slot", "", "slot id of the dragged card, e.g. node-id-12-slot-manager-id-3")
	cmd.Flags().StringVar(&toSlot, "to-slot", "", "slot id of the card it was dropped on")
	addMoveFlags(cmd, &mo)
	return cmd
}

func addMoveFlags(cmd *cobra.Command, mo *moveOptions) {
	cmd.Flags().StringVar(&mo.Policy, "policy", "reparent", "what a drop means: reparent or swap")
	cmd.Flags().StringVar(&mo.Mode, "mode", "set-manager", "how changes are saved: set-manager or reposition")
}

func runGesture(cmd *cobra.Command, opts *rootOptions, mo moveOptions, end gesture.SwapEnd) error {
	policy, mode, err := parsePolicyAndMode(mo.Policy, mo.Mode)
	if err != nil {
		return err
	}
	move, ok, err := end.Move()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !ok {
		fmt.Fprintln(out, mutedStyle.Render("Nothing changed."))
		return nil
	}

	controller, err := opts.loadController(cmd.Context(), cmd, policy, mode)
	if err != nil {
		return err
	}
	outcome, err := controller.Apply(cmd.Context(), move)
	if err != nil {
		var rejected *hierarchy.RejectedMove
		if errors.As(err, &rejected) || errors.Is(err, orgsync.ErrRemoteUpdate) {
			// The notifier already printed the user-facing message.
			return fmt.Errorf("gesture %s: %s", outcome.State, outcome.Message)
		}
		return err
	}

	fmt.Fprintln(out, renderForest(controller.Store().Forest(), movedIDs(outcome.Plan)))
	return nil
}

func movedIDs(plan hierarchy.Plan) map[int64]bool {
	ids := make(map[int64]bool, len(plan.Updates))
	for _, u := range plan.Updates {
		ids[u.ID] = true
	}
	return ids
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("employee id must be a positive integer, got %q", raw)
	}
	return id, nil
}
