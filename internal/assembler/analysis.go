package assembler

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rcliao/agent-context/internal/model"
)

// TaskType is the heuristic classification of what the user is asking for.
type TaskType string

const (
	TaskDebug    TaskType = "debug"
	TaskRefactor TaskType = "refactor"
	TaskTest     TaskType = "test"
	TaskReview   TaskType = "review"
	TaskExplain  TaskType = "explain"
	TaskCode     TaskType = "code"
	TaskGeneral  TaskType = "general"
)

// Analysis is derived once per request and drives section selection.
type Analysis struct {
	TaskType        TaskType `json:"taskType"`
	Complexity      int      `json:"complexity"`
	ExplorationRisk bool     `json:"explorationRisk"`
	TaskCount       int      `json:"taskCount"`
	Keywords        []string `json:"keywords"`
	Entities        []string `json:"entities"`
}

// DefaultAnalysis is used when analysis cannot be performed.
func DefaultAnalysis() Analysis {
	return Analysis{TaskType: TaskGeneral, TaskCount: 1, Keywords: []string{}, Entities: []string{}}
}

// taskRules is checked in order; the first type with a matching keyword wins.
var taskRules = []struct {
	typ      TaskType
	keywords []string
}{
	{TaskDebug, []string{"debug", "bug", "error", "fix", "crash", "broken", "fails", "failing", "exception", "stack trace", "not working", "panic"}},
	{TaskRefactor, []string{"refactor", "clean up", "cleanup", "restructure", "simplify", "reorganize", "rename", "extract"}},
	{TaskTest, []string{"test", "coverage", "assert", "mock"}},
	{TaskReview, []string{"review", "feedback", "critique", "audit", "look over"}},
	{TaskExplain, []string{"explain", "what is", "what does", "how does", "why does", "describe", "understand"}},
	{TaskCode, []string{"implement", "write", "create", "add", "build", "function", "feature", "endpoint"}},
}

var explorationPhrases = []string{
	"explore", "walk me through", "look around", "dig into", "investigate",
	"give me an overview", "understand the codebase", "familiarize", "poke around",
}

var technicalKeywords = map[string]bool{
	"api": true, "algorithm": true, "async": true, "auth": true, "cache": true,
	"class": true, "client": true, "concurrency": true, "config": true,
	"database": true, "deploy": true, "docker": true, "function": true,
	"goroutine": true, "http": true, "interface": true, "json": true,
	"kubernetes": true, "latency": true, "migration": true, "module": true,
	"mutex": true, "performance": true, "pipeline": true, "query": true,
	"schema": true, "security": true, "server": true, "sql": true,
	"thread": true, "transaction": true,
}

var multiStepWords = map[string]bool{
	"first": true, "then": true, "next": true, "finally": true,
	"afterwards": true, "additionally": true, "also": true, "step": true,
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "into": true, "are": true, "was": true,
	"you": true, "can": true, "please": true, "how": true, "what": true,
	"why": true, "does": true, "have": true, "has": true, "not": true,
}

var (
	filePathRe   = regexp.MustCompile(`(?:[\w.-]+/)+[\w.-]+|\b[\w-]+\.(?:go|ts|tsx|js|jsx|py|rs|java|rb|c|h|cpp|md|json|ya?ml|toml|sql|sh)\b`)
	identifierRe = regexp.MustCompile("`([^`\n]+)`|\\b([a-z]+[A-Z]\\w*|[A-Z][a-z]+[A-Z]\\w*|[a-z]+_[a-z_]+)\\b")
	numberedRe   = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+\S`)
	bulletRe     = regexp.MustCompile(`(?m)^\s*[-*•]\s+\S`)
	clauseSplit  = regexp.MustCompile(`[.;!?,\n]+`)
	wordRe       = regexp.MustCompile(`[\p{L}\p{N}_]+`)
)

var taskConnectors = map[string]bool{"and": true, "then": true, "also": true, "next": true}

const maxKeywords = 20

// Analyze classifies the conversation. Task type, exploration risk and task
// count describe the latest user message; complexity covers every user
// message.
func Analyze(messages []model.Message) Analysis {
	var user []string
	for _, m := range messages {
		if m.Role == "user" && strings.TrimSpace(m.Content) != "" {
			user = append(user, m.Content)
		}
	}
	if len(user) == 0 {
		return DefaultAnalysis()
	}
	current := user[len(user)-1]
	all := strings.Join(user, "\n")
	lower := strings.ToLower(current)
	words := wordRe.FindAllString(strings.ToLower(all), -1)

	a := Analysis{
		TaskType:        classify(lower),
		ExplorationRisk: containsAny(lower, explorationPhrases),
		TaskCount:       countTasks(current),
		Keywords:        keywords(words),
		Entities:        entities(all),
	}
	a.Complexity = complexity(all, len(user), len(filePaths(all)), countTechnical(words), countMultiStep(words))
	return a
}

func classify(lower string) TaskType {
	for _, r := range taskRules {
		if containsAny(lower, r.keywords) {
			return r.typ
		}
	}
	return TaskGeneral
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// complexity sums five sub-scores of 0..20 each.
func complexity(text string, messages, files, technical, steps int) int {
	score := bucket(utf8.RuneCountInString(text), 200, 500, 1000, 2000) +
		bucket(messages, 2, 4, 7, 11) +
		bucket(files, 1, 2, 4, 6) +
		bucket(technical, 1, 3, 5, 8) +
		bucket(steps, 1, 2, 3, 4)
	return min(score, 100)
}

// bucket maps n to 0, 5, 10, 15 or 20 by the ascending thresholds.
func bucket(n int, thresholds ...int) int {
	score := 0
	for _, t := range thresholds {
		if n >= t {
			score += 5
		}
	}
	return score
}

func countTasks(text string) int {
	numbered := len(numberedRe.FindAllString(text, -1))
	bullets := len(bulletRe.FindAllString(text, -1))

	// A clause starts after a connector word, whether it follows
	// punctuation or sits mid-sentence; "and then" is one boundary.
	clauses := 0
	for _, part := range clauseSplit.Split(text, -1) {
		afterConnector := false
		for _, w := range strings.Fields(strings.ToLower(part)) {
			if taskConnectors[w] {
				afterConnector = true
				continue
			}
			if afterConnector {
				clauses++
				afterConnector = false
			}
		}
	}
	if clauses > 0 {
		clauses++ // the leading clause
	}
	return max(1, numbered, bullets, clauses)
}

func filePaths(text string) []string {
	return dedupe(filePathRe.FindAllString(text, -1))
}

func entities(text string) []string {
	found := filePaths(text)
	for _, m := range identifierRe.FindAllStringSubmatch(text, -1) {
		if m[1] != "" {
			found = append(found, m[1])
		} else {
			found = append(found, m[2])
		}
	}
	return dedupe(found)
}

func keywords(words []string) []string {
	var out []string
	for _, w := range words {
		if utf8.RuneCountInString(w) >= 3 && !stopWords[w] {
			out = append(out, w)
		}
	}
	out = dedupe(out)
	if len(out) > maxKeywords {
		out = out[:maxKeywords]
	}
	return out
}

func countTechnical(words []string) int {
	n := 0
	for _, w := range dedupe(words) {
		if technicalKeywords[w] {
			n++
		}
	}
	return n
}

func countMultiStep(words []string) int {
	n := 0
	for _, w := range words {
		if multiStepWords[w] {
			n++
		}
	}
	return n
}

// dedupe keeps the first occurrence of each value.
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
