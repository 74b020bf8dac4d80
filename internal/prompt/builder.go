package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/suPer8Hu/coursegen/internal/course"
	"github.com/suPer8Hu/coursegen/internal/schema"
)

//go:embed depth.yaml
var depthCatalogue []byte

// previousTitles is how many earlier items of the same topic are quoted for continuity.
const previousTitles = 2

type Level struct {
	Depth     int      `yaml:"depth"`
	Label     string   `yaml:"label"`
	Audience  string   `yaml:"audience"`
	Tone      string   `yaml:"tone"`
	Guidance  []string `yaml:"guidance"`
	Citations string   `yaml:"citations"`
}

type Prompts struct {
	System string
	User   string
}

// Builder composes system and user prompts. Output rules live in the system
// prompt so that trimming the user prompt never removes them. Builder itself
// does not enforce a token budget.
type Builder struct {
	levels map[int]Level
}

func NewBuilder() (*Builder, error) {
	return ParseCatalogue(depthCatalogue)
}

// ParseCatalogue builds a Builder from a YAML catalogue that defines depths 1-5.
func ParseCatalogue(data []byte) (*Builder, error) {
	var doc struct {
		Levels []Level `yaml:"levels"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse depth catalogue: %w", err)
	}
	levels := make(map[int]Level, len(doc.Levels))
	for _, l := range doc.Levels {
		levels[l.Depth] = l
	}
	for d := 1; d <= 5; d++ {
		if _, ok := levels[d]; !ok {
			return nil, fmt.Errorf("depth catalogue: missing level %d", d)
		}
	}
	return &Builder{levels: levels}, nil
}

func (b *Builder) Level(depth int) (Level, error) {
	l, ok := b.levels[depth]
	if !ok {
		return Level{}, fmt.Errorf("depth must be between 1 and 5, got %d", depth)
	}
	return l, nil
}

func (b *Builder) writeLevel(sb *strings.Builder, l Level) {
	fmt.Fprintf(sb, "Audience: %s (%s level).\n", l.Audience, l.Label)
	fmt.Fprintf(sb, "Tone: %s.\n", l.Tone)
	for _, g := range l.Guidance {
		fmt.Fprintf(sb, "- %s\n", g)
	}
}

// Syllabus returns the prompts for generating a course outline.
func (b *Builder) Syllabus(cfg course.CourseConfiguration, st schema.Structure) (Prompts, error) {
	l, err := b.Level(cfg.Depth)
	if err != nil {
		return Prompts{}, err
	}

	var sys strings.Builder
	sys.WriteString("You are an expert curriculum designer who turns a learner's goal into a structured course.\n")
	b.writeLevel(&sys, l)
	fmt.Fprintf(&sys, "Structure: exactly %s.\n", st)
	sys.WriteString("Modules build on one another; topics inside a module are ordered from first to last.\n")
	sys.WriteString("For every module write a summary of 20-300 characters.\n")
	sys.WriteString("For every topic write a summary of 10-200 characters, 3-10 keywords and 100-2000 characters of seed markdown content.\n")
	sys.WriteString("Finish with 5-20 keywords describing the whole course.\n")
	sys.WriteString("Respond only with JSON that matches the provided schema.\n")

	var user strings.Builder
	fmt.Fprintf(&user, "Design a course about: %s\n", strings.TrimSpace(cfg.Topic))
	if c := strings.TrimSpace(cfg.Context); c != "" {
		fmt.Fprintf(&user, "Why the learner wants this course: %s\n", c)
	}
	fmt.Fprintf(&user, "Depth level: %d of 5 (%s).\n", cfg.Depth, l.Label)

	return Prompts{System: sys.String(), User: user.String()}, nil
}

type ContentInput struct {
	Course      course.CourseConfiguration
	Modules     []course.Module
	ModuleIndex int
	TopicIndex  int
	ContentType course.ContentType
	Instruction string
	// Existing items for the topic, ordered by order_index.
	Previous []course.ContentItem
}

func mediumFor(t course.ContentType) string {
	switch t {
	case course.ContentImage:
		return "an illustrated explainer: the text plus a description and caption for every figure an illustrator should draw"
	case course.ContentVideo:
		return "a narrated video script with scene directions between the spoken passages"
	case course.ContentAudio:
		return "a podcast-style audio script written to be listened to"
	case course.ContentDocument:
		return "a reference document with clear headings that learners can download and keep"
	case course.ContentInteractive:
		return "an interactive exercise set: short explanations followed by tasks, expected answers and feedback"
	default:
		return "a written lesson"
	}
}

// Content returns the prompts for one content item of a topic.
func (b *Builder) Content(in ContentInput) (Prompts, error) {
	l, err := b.Level(in.Course.Depth)
	if err != nil {
		return Prompts{}, err
	}
	if in.ModuleIndex < 0 || in.ModuleIndex >= len(in.Modules) {
		return Prompts{}, fmt.Errorf("module index %d out of range (syllabus has %d modules)", in.ModuleIndex, len(in.Modules))
	}
	mod := in.Modules[in.ModuleIndex]
	if in.TopicIndex < 0 || in.TopicIndex >= len(mod.Topics) {
		return Prompts{}, fmt.Errorf("topic index %d out of range (module %d has %d topics)", in.TopicIndex, in.ModuleIndex, len(mod.Topics))
	}
	topic := mod.Topics[in.TopicIndex]

	var sys strings.Builder
	sys.WriteString("You are an expert educator writing course material backed by verifiable sources.\n")
	b.writeLevel(&sys, l)
	fmt.Fprintf(&sys, "Produce %s.\n", mediumFor(in.ContentType))
	sys.WriteString("Title: 10-200 characters. Description: 20-500 characters. Body: 500-8000 characters of markdown.\n")
	sys.WriteString("Attach 3-15 citations, each with id, type (academic, web, book, article or documentation), title and a relevance note.\n")
	fmt.Fprintf(&sys, "Citations: %s\n", l.Citations)
	sys.WriteString("Respond only with JSON that matches the provided schema.\n")

	var user strings.Builder
	fmt.Fprintf(&user, "Course: %s (depth %d of 5).\n", strings.TrimSpace(in.Course.Topic), in.Course.Depth)
	if c := strings.TrimSpace(in.Course.Context); c != "" {
		fmt.Fprintf(&user, "Learner goal: %s\n", c)
	}
	if inst := strings.TrimSpace(in.Instruction); inst != "" {
		fmt.Fprintf(&user, "Instruction: %s\n", inst)
	}
	fmt.Fprintf(&user, "Module %d: %s\n", in.ModuleIndex+1, mod.Summary)
	fmt.Fprintf(&user, "Topic %d: %s\n", in.TopicIndex+1, topic.Summary)
	if len(topic.Keywords) > 0 {
		fmt.Fprintf(&user, "Keywords: %s\n", strings.Join(topic.Keywords, ", "))
	}
	if prev := lastTitles(in.Previous, previousTitles); len(prev) > 0 {
		fmt.Fprintf(&user, "Already written for this topic: %s. Build on them without repeating them.\n", strings.Join(prev, "; "))
	}
	if in.TopicIndex+1 < len(mod.Topics) {
		fmt.Fprintf(&user, "Next topic in the module: %s. Close with a short bridge towards it.\n", mod.Topics[in.TopicIndex+1].Summary)
	} else {
		user.WriteString("This is the end of module: close with a recap of the module.\n")
	}
	if s := strings.TrimSpace(topic.Content); s != "" {
		fmt.Fprintf(&user, "Seed notes: %s\n", s)
	}

	return Prompts{System: sys.String(), User: user.String()}, nil
}

func lastTitles(items []course.ContentItem, n int) []string {
	if len(items) > n {
		items = items[len(items)-n:]
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if t := strings.TrimSpace(it.Title); t != "" {
			out = append(out, fmt.Sprintf("%q", t))
		}
	}
	return out
}
