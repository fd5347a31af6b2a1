// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog loads the static ticket categories and the intake
// questions asked for each.
//
// The catalog is a JSONC file: JSON extended with // line comments,
// /* block comments */, and trailing commas.
//
//	{
//	  "categories": [
//	    {
//	      "id": "essay",
//	      "name": "Essay review",
//	      "questions": [
//	        {"id": "topic", "prompt": "What is the essay about?"},
//	        {"id": "deadline", "prompt": "When is it due?", "options": ["today", "this week"]},
//	      ],
//	    },
//	  ],
//	}
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/ticketbridge/lib/store"
)

// Question is one intake prompt.
type Question struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`

	// Options restricts the answer to one of these values, matched
	// case-insensitively. Empty accepts free text.
	Options []string `json:"options,omitempty"`
}

// Accept returns the canonical form of answer, or false when the
// question has options and answer is not one of them.
func (q Question) Accept(answer string) (string, bool) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", false
	}
	if len(q.Options) == 0 {
		return answer, true
	}
	for _, option := range q.Options {
		if strings.EqualFold(option, answer) {
			return option, true
		}
	}
	return "", false
}

// Category is one kind of support request.
type Category struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Questions   []Question `json:"questions,omitempty"`
}

// NextQuestion returns the first question without an answer.
func (c Category) NextQuestion(answers map[string]string) (Question, bool) {
	for _, question := range c.Questions {
		if _, answered := answers[question.ID]; !answered {
			return question, true
		}
	}
	return Question{}, false
}

// Catalog is the loaded set of categories in file order.
type Catalog struct {
	Categories []Category `json:"categories"`
}

// Parse decodes and validates a JSONC catalog.
func Parse(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := json.Unmarshal(jsonc.ToJSON(data), &catalog); err != nil {
		return nil, fmt.Errorf("catalog: parsing: %w", err)
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

// Load reads and parses the catalog at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	catalog, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w (in %s)", err, path)
	}
	return catalog, nil
}

// Validate checks that IDs are present and unique and that every
// category has a name.
func (c *Catalog) Validate() error {
	var errs []error
	if len(c.Categories) == 0 {
		errs = append(errs, errors.New("no categories defined"))
	}
	seen := make(map[string]bool, len(c.Categories))
	for i, category := range c.Categories {
		switch {
		case category.ID == "":
			errs = append(errs, fmt.Errorf("categories[%d]: id is required", i))
		case seen[category.ID]:
			errs = append(errs, fmt.Errorf("categories[%d]: duplicate id %q", i, category.ID))
		}
		seen[category.ID] = true
		if category.Name == "" {
			errs = append(errs, fmt.Errorf("category %q: name is required", category.ID))
		}
		questions := make(map[string]bool, len(category.Questions))
		for j, question := range category.Questions {
			if question.ID == "" || question.Prompt == "" {
				errs = append(errs, fmt.Errorf("category %q: questions[%d]: id and prompt are required", category.ID, j))
				continue
			}
			if questions[question.ID] {
				errs = append(errs, fmt.Errorf("category %q: duplicate question %q", category.ID, question.ID))
			}
			questions[question.ID] = true
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	return nil
}

// Lookup returns the category with the given ID.
func (c *Catalog) Lookup(id string) (Category, bool) {
	for _, category := range c.Categories {
		if category.ID == id {
			return category, true
		}
	}
	return Category{}, false
}

// Match resolves a customer's category choice: a 1-based menu number,
// an ID, or a name, compared case-insensitively.
func (c *Catalog) Match(choice string) (Category, bool) {
	choice = strings.TrimSpace(choice)
	if index, err := strconv.Atoi(choice); err == nil {
		if index >= 1 && index <= len(c.Categories) {
			return c.Categories[index-1], true
		}
		return Category{}, false
	}
	for _, category := range c.Categories {
		if strings.EqualFold(category.ID, choice) || strings.EqualFold(category.Name, choice) {
			return category, true
		}
	}
	return Category{}, false
}

// Menu renders the numbered category list shown to a new customer.
func (c *Catalog) Menu() string {
	var b strings.Builder
	b.WriteString("What can we help you with? Reply with a number:")
	for i, category := range c.Categories {
		fmt.Fprintf(&b, "\n%d. %s", i+1, category.Name)
		if category.Description != "" {
			b.WriteString(" - " + category.Description)
		}
	}
	return b.String()
}

// Records returns the categories as stored rows.
func (c *Catalog) Records() []store.Category {
	records := make([]store.Category, len(c.Categories))
	for i, category := range c.Categories {
		records[i] = store.Category{ID: category.ID, Name: category.Name}
	}
	return records
}
