package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var conversationCmd = &cobra.Command{
	Use:     "conversation",
	Aliases: []string{"conv"},
	Short:   "Interact with conversations",
}

var (
	initialState []string
	slotName     string
	pageType     string
	workflowType string
	failReason   string
	listLimit    int
)

var startCmd = &cobra.Command{
	Use:   "start [user intent]",
	Short: "Start a new conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]interface{}{"user_intent": args[0]}
		if len(initialState) > 0 {
			state, err := parseState(initialState)
			if err != nil {
				return err
			}
			body["initial_state"] = state
		}
		return do(cmd, http.MethodPost, "/conversations", body)
	},
}

var inputCmd = &cobra.Command{
	Use:   "input [run-id] [answer]",
	Short: "Answer the pending slot question",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]interface{}{"user_input": args[1]}
		if slotName != "" {
			body["context"] = map[string]string{"slot_name": slotName}
		}
		return do(cmd, http.MethodPost, runPath(args[0], "input"), body)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show the conversation status and its tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return do(cmd, http.MethodGet, runPath(args[0], "status"), nil)
	},
}

var nextCmd = &cobra.Command{
	Use:   "next [run-id]",
	Short: "Show the next action for a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return do(cmd, http.MethodGet, runPath(args[0], "next-action"), nil)
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate [run-id]",
	Short: "Generate content for a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		taskData := map[string]interface{}{}
		if pageType != "" {
			taskData["page_type"] = pageType
		}
		return do(cmd, http.MethodPost, runPath(args[0], "generate"), map[string]interface{}{"task_data": taskData})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify [run-id] [content-ref]",
	Short: "Verify generated content",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return do(cmd, http.MethodPost, runPath(args[0], "verify/"+url.PathEscape(args[1])), nil)
	},
}

var workflowCmd = &cobra.Command{
	Use:   "workflow [run-id]",
	Short: "Run a content workflow (standard or with_verification)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return do(cmd, http.MethodPost, runPath(args[0], "workflow"), map[string]string{"workflow_type": workflowType})
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete [run-id]",
	Short: "Mark a conversation as completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return do(cmd, http.MethodPost, runPath(args[0], "complete"), nil)
	},
}

var failCmd = &cobra.Command{
	Use:   "fail [run-id]",
	Short: "Mark a conversation as failed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return do(cmd, http.MethodPost, runPath(args[0], "fail"), map[string]string{"reason": failReason})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return do(cmd, http.MethodGet, "/conversations?limit="+strconv.Itoa(listLimit), nil)
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the service health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return do(cmd, http.MethodGet, "/health", nil)
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload-config",
	Short: "Reload the planner policy on the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return do(cmd, http.MethodPost, "/reload-config", nil)
	},
}

func init() {
	startCmd.Flags().StringSliceVar(&initialState, "state", nil, "initial slot values as key=value")
	inputCmd.Flags().StringVar(&slotName, "slot", "", "slot the answer belongs to (defaults to the pending question)")
	generateCmd.Flags().StringVar(&pageType, "page-type", "", "page type to generate, e.g. homepage")
	workflowCmd.Flags().StringVar(&workflowType, "type", "standard", "workflow type")
	failCmd.Flags().StringVar(&failReason, "reason", "", "failure reason")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "maximum number of conversations")

	conversationCmd.AddCommand(startCmd, inputCmd, statusCmd, nextCmd, generateCmd,
		verifyCmd, workflowCmd, completeCmd, failCmd, listCmd)
	rootCmd.AddCommand(conversationCmd, healthCmd, reloadCmd)
}

func runPath(runID, action string) string {
	return "/conversations/" + url.PathEscape(runID) + "/" + action
}

func do(cmd *cobra.Command, method, path string, body interface{}) error {
	client, err := newAPIClient(cmd.Context())
	if err != nil {
		return err
	}
	raw, err := client.call(cmd.Context(), method, path, body)
	if err != nil {
		return err
	}
	printJSON(cmd.OutOrStdout(), raw)
	return nil
}

// parseState turns key=value pairs into an initial slot state. Values that
// are valid JSON (numbers, arrays, objects) are decoded, anything else stays a string.
func parseState(pairs []string) (map[string]interface{}, error) {
	state := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid state %q, expected key=value", pair)
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			state[key] = decoded
			continue
		}
		state[key] = value
	}
	return state, nil
}
