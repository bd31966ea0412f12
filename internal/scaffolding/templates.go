package scaffolding

import (
	"embed"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Starter corpus templates. Topic documents live under templates/rules and
// are referenced from the root document by @path markers, so the generated
// tree is a working corpus from the first load.
//
//go:embed templates
var templateFS embed.FS

// Topic is one starter rule document.
type Topic struct {
	// File is the document file name under rules/
	File string
	// Title is the rendered document title
	Title string
}

// TemplateContext carries the values the corpus templates interpolate.
type TemplateContext struct {
	ProjectName string
	RootName    string
	Date        string
	Topics      []Topic
}

type topicContext struct {
	TemplateContext
	Title string
}

var builtinTopicNames = []string{
	"injection",
	"secrets",
	"input-validation",
	"authentication",
	"cryptography",
	"file-handling",
	"dependencies",
}

// BuiltinTopics returns the starter topic set in corpus order.
func BuiltinTopics() []Topic {
	caser := cases.Title(language.English)
	topics := make([]Topic, 0, len(builtinTopicNames))
	for _, name := range builtinTopicNames {
		topics = append(topics, Topic{
			File:  name + ".md",
			Title: caser.String(strings.ReplaceAll(name, "-", " ")),
		})
	}
	return topics
}
