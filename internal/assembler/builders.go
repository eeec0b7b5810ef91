package assembler

import (
	"fmt"
	"strings"

	"github.com/rcliao/agent-context/internal/model"
)

// Static sections are built once and copied into each request.
var (
	coreInstructions = NewSection("core-instructions", "Core Instructions", CategoryInstruction, PriorityCritical,
		`## Core Instructions
- Do exactly what was asked. Do not add features, files or refactors that were not requested.
- Read the relevant code before changing it and keep changes minimal and focused.
- Preserve existing behavior unless the user asked to change it.
- When requirements are ambiguous, state your assumption before acting.
- Never claim work is done or verified unless it actually is.`)

	scopeDiscipline = NewSection("scope-discipline", "Scope Discipline", CategoryEngineering, PriorityMedium,
		`## Scope Discipline
- Stay inside the files and components the task touches.
- Do not reformat, rename or reorganize unrelated code.
- If you notice an unrelated problem, mention it instead of fixing it.
- Prefer the smallest change that fully solves the problem.`)

	explorationGuard = NewSection("exploration-guard", "Exploration Guard", CategoryEngineering, PriorityHigh,
		`## Exploration Guard
This request invites open-ended exploration. Keep it bounded:
- Start from the entry points most related to the question.
- Read only what you need to answer; stop once you can.
- Summarize findings as you go instead of reading everything first.
- Do not modify files while exploring unless asked.`)

	communicationStyle = NewSection("communication-style", "Communication Style", CategoryEngineering, PriorityLow,
		`## Communication Style
- Be concise. Lead with the answer or the change, then the details.
- Reference code as path:line.
- Report failures and skipped steps plainly.`)

	planning = NewSection("planning", "Planning", CategoryEngineering, PriorityMedium,
		`## Planning
This is a complex request. Before editing, outline the steps you will take, then work through them in order and check each one off.`)

	taskEmphasis = map[TaskType]Section{
		TaskDebug: NewSection("emphasis-debug", "Debugging Focus", CategoryEmphasis, PriorityHigh,
			`## Debugging Focus
Find the root cause before changing code. Reproduce the failure, form a hypothesis, confirm it, then fix the cause rather than the symptom.`),
		TaskRefactor: NewSection("emphasis-refactor", "Refactoring Focus", CategoryEmphasis, PriorityHigh,
			`## Refactoring Focus
Behavior must not change. Move in small steps and keep the code working after each one.`),
		TaskTest: NewSection("emphasis-test", "Testing Focus", CategoryEmphasis, PriorityHigh,
			`## Testing Focus
Test behavior, not implementation. Cover edge cases and failure paths and follow the project's existing test conventions.`),
		TaskReview: NewSection("emphasis-review", "Review Focus", CategoryEmphasis, PriorityHigh,
			`## Review Focus
Look for correctness bugs, missing error handling and unclear code. Rank findings by severity and point to exact locations.`),
		TaskExplain: NewSection("emphasis-explain", "Explanation Focus", CategoryEmphasis, PriorityHigh,
			`## Explanation Focus
Explain clearly and accurately. Ground the explanation in the actual code and say when you are unsure.`),
		TaskCode: NewSection("emphasis-code", "Implementation Focus", CategoryEmphasis, PriorityHigh,
			`## Implementation Focus
Match the surrounding code's style and conventions. Handle errors explicitly and keep the change complete but minimal.`),
	}

	engineeringNotes = map[TaskType]Section{
		TaskDebug: NewSection("engineering-debug", "Debugging Notes", CategoryEngineering, PriorityMedium,
			`## Debugging Notes
- Read the full error and stack trace first.
- Add a regression test for the bug when the project has tests.`),
		TaskRefactor: NewSection("engineering-refactor", "Refactoring Notes", CategoryEngineering, PriorityMedium,
			`## Refactoring Notes
- Run existing tests before and after.
- Keep public interfaces stable unless the task is to change them.`),
		TaskTest: NewSection("engineering-test", "Testing Notes", CategoryEngineering, PriorityMedium,
			`## Testing Notes
- Keep tests deterministic: no sleeps, real clocks or network.
- One behavior per test case with a descriptive name.`),
		TaskCode: NewSection("engineering-code", "Implementation Notes", CategoryEngineering, PriorityMedium,
			`## Implementation Notes
- Reuse existing helpers before writing new ones.
- Validate inputs at boundaries and return errors with context.`),
	}
)

// staticSections returns the core instruction section.
func staticSections() []Section {
	return []Section{coreInstructions}
}

// emphasisSections returns the task emphasis for the analyzed task type.
func emphasisSections(a Analysis) []Section {
	if s, ok := taskEmphasis[a.TaskType]; ok {
		return []Section{s}
	}
	return nil
}

// engineeringSections returns the behavioral battery, varying by analysis
// and available tools.
func engineeringSections(a Analysis, tools []model.Tool) []Section {
	var out []Section
	if len(tools) > 0 {
		out = append(out, toolUsageSection(tools))
	}
	out = append(out, scopeDiscipline)
	if a.ExplorationRisk {
		out = append(out, explorationGuard)
	}
	if s, ok := engineeringNotes[a.TaskType]; ok {
		out = append(out, s)
	}
	if a.TaskCount > 1 {
		out = append(out, multiTaskSection(a.TaskCount))
	}
	if a.Complexity >= 50 {
		out = append(out, planning)
	}
	out = append(out, communicationStyle)
	return out
}

func toolUsageSection(tools []model.Tool) Section {
	var b strings.Builder
	b.WriteString("## Tool Usage\n")
	b.WriteString("Available tools: ")
	for i, t := range tools {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Name)
	}
	b.WriteString("\n- Prefer a dedicated tool over a shell command when one fits.")
	b.WriteString("\n- Run independent tool calls together; run dependent ones in order.")
	b.WriteString("\n- Read a file before editing it.")
	return NewSection("tool-usage", "Tool Usage", CategoryEngineering, PriorityHigh, b.String())
}

func multiTaskSection(n int) Section {
	content := fmt.Sprintf(`## Multiple Tasks
This request contains %d tasks. Track each one, complete them in order, and confirm every task is addressed before finishing.`, n)
	return NewSection("multi-task", "Multiple Tasks", CategoryEngineering, PriorityMedium, content)
}

// memorySections formats retrieved memories. The status section is added
// only when at least one memory was found.
func memorySections(global, project []model.Memory, projectPath string) []Section {
	var out []Section
	if len(global) > 0 {
		out = append(out, memoryScopeSection("global-memories", "Global Memories",
			"Facts remembered across all projects:", global))
	}
	if len(project) > 0 {
		out = append(out, memoryScopeSection("project-memories", "Project Memories",
			fmt.Sprintf("Facts remembered for %s:", projectPath), project))
	}
	if len(out) > 0 {
		status := fmt.Sprintf("## Memory Status\nLoaded %d global and %d project memories for this request. Treat them as prior knowledge that may be out of date; the current conversation wins on conflict.",
			len(global), len(project))
		s := NewSection("memory-status", "Memory Status", CategoryMemory, PriorityLow, status)
		s.Metadata.Source = "memory"
		out = append(out, s)
	}
	return out
}

func memoryScopeSection(id, title, intro string, memories []model.Memory) Section {
	byCategory := make(map[model.Category][]string)
	for _, m := range memories {
		byCategory[m.Category] = append(byCategory[m.Category], m.Content)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n%s\n", title, intro)
	for _, c := range model.Categories {
		items := byCategory[c]
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n### %s\n", categoryTitle(c))
		for _, item := range items {
			fmt.Fprintf(&b, "- %s\n", strings.ReplaceAll(item, "\n", " "))
		}
	}
	s := NewSection(id, title, CategoryMemory, PriorityHigh, strings.TrimRight(b.String(), "\n"))
	s.Metadata.Source = "memory"
	return s
}

func categoryTitle(c model.Category) string {
	s := string(c)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
