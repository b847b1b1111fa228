package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/raayon/raayon/internal/config"
	"github.com/raayon/raayon/internal/storage"
)

// --- seed ---

type seedTopic struct {
	Number      int
	Label       string
	Description string
	Questions   []string
}

// seedCatalog is the default Hebrew topic catalog for the HLD breakdown
// interview: how the manager structures high-level designs into epics,
// features, and stories.
var seedCatalog = []seedTopic{
	{
		Number: 1, Label: "הבנת מבנה HLD",
		Description: "איך המנהל מגדיר ותופס מסמכי HLD בפרויקט",
		Questions: []string{
			"איך אתה מגדיר HLD בפרויקט שלך?",
			"מה המבנה הטיפוסי של HLD שאתה רואה?",
			"אילו רכיבים עיקריים כולל HLD?",
		},
	},
	{
		Number: 2, Label: "הגדרת Epics",
		Description: "קריטריונים והיקף להגדרת Epic",
		Questions: []string{
			"איך אתה מגדיר Epic?",
			"מה הקריטריונים להגדרת Epic חדש?",
			"כמה Epics בדרך כלל יש בפרויקט?",
		},
	},
	{
		Number: 3, Label: "פירוק ל-Features",
		Description: "איך מפרקים Epic ל-Features ומה הגודל הנכון",
		Questions: []string{
			"איך אתה מפרק Epic ל-Features?",
			"מה הגודל הטיפוסי של Feature?",
			"איך אתה מחליט כמה Features צריך ל-Epic?",
		},
	},
	{
		Number: 4, Label: "יצירת Stories",
		Description: "תהליך וקריטריונים ליצירת Stories",
		Questions: []string{
			"איך אתה יוצר Stories מ-Features?",
			"מה הקריטריונים ל-Story טוב?",
			"כמה Stories בדרך כלל יש ב-Feature?",
		},
	},
	{
		Number: 5, Label: "עקביות בין צוותים",
		Description: "שמירה על עקביות הפירוק בין מדורים וצוותים",
		Questions: []string{
			"איך אתה מוודא עקביות בין מדורים שונים?",
			"מה האתגרים בשמירה על עקביות?",
			"אילו כלים או תהליכים עוזרים לשמירה על עקביות?",
		},
	},
	{
		Number: 6, Label: "הערכה ותכנון",
		Description: "הערכת היקפים ותכנון עבודה מתוך HLD",
		Questions: []string{
			"איך אתה מעריך Epics ו-Features?",
			"מה התהליך של תכנון עבודה מ-HLD?",
			"איך אתה מתמודד עם אי-ודאות בתכנון?",
		},
	},
	{
		Number: 7, Label: "תלויות וסיכונים",
		Description: "זיהוי וניהול תלויות וסיכונים בפירוק",
		Questions: []string{
			"איך אתה מטפל בתלויות בין Epics/Features?",
			"מה הסיכונים העיקריים בפירוק HLD?",
			"איך אתה מזהה ומנהל סיכונים?",
		},
	},
	{
		Number: 8, Label: "כלים ותהליכים",
		Description: "כלים, תהליכים ותיעוד של הפירוק",
		Questions: []string{
			"אילו כלים אתה משתמש לפירוק HLD?",
			"מה התהליך שלך מ-HLD עד Stories?",
			"איך אתה מתעד את התהליך?",
		},
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the default topic and question catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		topics, questions, err := seedStore(store)
		if err != nil {
			return err
		}

		printSuccess("Seeded %d topics and %d default questions", topics, questions)
		return nil
	},
}

// seedStore inserts the default catalog, skipping topics and questions that
// already exist so re-running is safe.
func seedStore(store *storage.Store) (topics, questions int, err error) {
	for _, st := range seedCatalog {
		err := store.CreateTopic(storage.Topic{
			Number:      st.Number,
			Label:       st.Label,
			Description: st.Description,
		})
		switch {
		case errors.Is(err, storage.ErrConflict):
			// already seeded
		case err != nil:
			return topics, questions, fmt.Errorf("seeding topic %d: %w", st.Number, err)
		default:
			topics++
		}

		existing, err := store.ListDefaultQuestions(st.Number)
		if err != nil {
			return topics, questions, err
		}
		have := make(map[string]bool, len(existing))
		for _, q := range existing {
			have[q.QuestionText] = true
		}

		for _, text := range st.Questions {
			if have[text] {
				continue
			}
			err := store.CreateQuestion(storage.Question{
				ID:           uuid.NewString(),
				TopicNumber:  st.Number,
				QuestionText: text,
				IsDefault:    true,
			})
			if err != nil {
				return topics, questions, fmt.Errorf("seeding question for topic %d: %w", st.Number, err)
			}
			questions++
		}
	}
	return topics, questions, nil
}

// --- interviews ---

var interviewsCmd = &cobra.Command{
	Use:   "interviews",
	Short: "Manage interviews via the running server",
}

var interviewsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List interviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/interviews")
		if err != nil {
			return err
		}

		var interviews []struct {
			ID          string `json:"id"`
			ManagerName string `json:"managerName"`
			Status      string `json:"status"`
			ShareToken  string `json:"shareToken"`
			CreatedAt   string `json:"createdAt"`
		}
		if err := decodeJSON(resp, &interviews); err != nil {
			return err
		}

		if len(interviews) == 0 {
			fmt.Println("No interviews found.")
			return nil
		}

		for _, iv := range interviews {
			fmt.Printf("%s  %-12s  %s  %s\n",
				colorize(colorCyan, iv.ID[:8]),
				iv.Status,
				iv.CreatedAt,
				iv.ManagerName,
			)
		}
		return nil
	},
}

var interviewsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an interview and print its share token",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		role, _ := cmd.Flags().GetString("role")
		email, _ := cmd.Flags().GetString("email")
		topicsStr, _ := cmd.Flags().GetString("topics")
		challengeID, _ := cmd.Flags().GetString("challenge")

		if name == "" || email == "" || topicsStr == "" {
			return fmt.Errorf("--name, --email, and --topics are required")
		}

		var selected []int
		for _, part := range strings.Split(topicsStr, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return fmt.Errorf("invalid topic number %q", part)
			}
			selected = append(selected, n)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"managerName":    name,
			"adminEmail":     email,
			"selectedTopics": selected,
		}
		if role != "" {
			req["managerRole"] = role
		}
		if challengeID != "" {
			req["challengeId"] = challengeID
		}

		resp, err := client.post(cmd.Context(), "/api/interviews", req)
		if err != nil {
			return err
		}

		var result struct {
			ID         string `json:"id"`
			ShareToken string `json:"shareToken"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Created interview %s", result.ID)
		printStatus("Share token", "%s", result.ShareToken)
		return nil
	},
}

var interviewsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an interview and its session data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/api/interviews/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted interview %s", args[0])
		return nil
	},
}

func init() {
	interviewsCreateCmd.Flags().String("name", "", "manager name")
	interviewsCreateCmd.Flags().String("role", "", "manager role")
	interviewsCreateCmd.Flags().String("email", "", "admin email for the summary")
	interviewsCreateCmd.Flags().String("topics", "", "comma-separated topic numbers")
	interviewsCreateCmd.Flags().String("challenge", "", "challenge id to bind the interview to")

	interviewsCmd.AddCommand(interviewsListCmd)
	interviewsCmd.AddCommand(interviewsCreateCmd)
	interviewsCmd.AddCommand(interviewsDeleteCmd)
}

// --- topics ---

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Manage the topic catalog via the running server",
}

var topicsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List topics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/topics")
		if err != nil {
			return err
		}

		var topics []struct {
			Number      int    `json:"number"`
			Label       string `json:"label"`
			Description string `json:"description"`
		}
		if err := decodeJSON(resp, &topics); err != nil {
			return err
		}

		if len(topics) == 0 {
			fmt.Println("No topics found. Run 'raayon seed' to load the default catalog.")
			return nil
		}

		for _, t := range topics {
			fmt.Printf("%s  %s\n", colorize(colorBold, fmt.Sprintf("%2d", t.Number)), t.Label)
			if t.Description != "" {
				fmt.Printf("    %s\n", t.Description)
			}
		}
		return nil
	},
}

func init() {
	topicsCmd.AddCommand(topicsListCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List valid configuration keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(config.ValidKeys())
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configKeysCmd)
}
