// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// Reviser applies chat-driven edits to already-generated composition
// code: generate from the instruction, run a fast local check, and on
// failure call the repair collaborator once with the diagnostics. The
// repaired output is accepted best-effort — the second check's findings
// are returned to the caller but do not trigger further repairs. This
// is the single-attempt sibling of the Engine's bounded render loop.
type Reviser struct {
	editor Editor
}

// NewReviser wraps the edit/repair collaborator pair.
func NewReviser(editor Editor) *Reviser {
	return &Reviser{editor: editor}
}

// ReviseResult carries the accepted code plus any diagnostics still
// open after the one repair pass.
type ReviseResult struct {
	CompositionCode string   `json:"composition_code"`
	Diagnostics     []string `json:"diagnostics,omitempty"`
	Repaired        bool     `json:"repaired"`
}

// Revise produces new composition code for the instruction against the
// given run state.
func (r *Reviser) Revise(ctx context.Context, st State, instruction string) (ReviseResult, error) {
	gen := func(ctx context.Context) (string, []string, error) {
		res, err := r.editor.EditComposition(ctx, st, instruction)
		return res.CompositionCode, res.Errs, err
	}
	repair := func(ctx context.Context, code string, diags []string) (string, []string, error) {
		res, err := r.editor.RepairComposition(ctx, code, diags)
		return res.CompositionCode, res.Errs, err
	}
	code, diags, repaired, err := attemptValidateRepair(ctx, gen, CheckComposition, repair)
	if err != nil {
		return ReviseResult{}, err
	}
	return ReviseResult{CompositionCode: code, Diagnostics: diags, Repaired: repaired}, nil
}

// attemptValidateRepair runs one generate call, validates its output
// locally, and on validation failure invokes the repair collaborator
// exactly once with the specific diagnostics. The repaired output is
// accepted regardless of whether it still fails the check.
func attemptValidateRepair(
	ctx context.Context,
	gen func(context.Context) (string, []string, error),
	validate func(string) []string,
	repair func(context.Context, string, []string) (string, []string, error),
) (code string, diagnostics []string, repaired bool, err error) {
	code, errs, err := gen(ctx)
	if err != nil {
		return "", nil, false, fmt.Errorf("generate: %w", err)
	}
	if len(errs) > 0 {
		return "", nil, false, fmt.Errorf("generate: %s", strings.Join(errs, "; "))
	}

	diags := validate(code)
	if len(diags) == 0 {
		return code, nil, false, nil
	}

	fixed, errs, err := repair(ctx, code, diags)
	if err != nil {
		return "", nil, false, fmt.Errorf("repair: %w", err)
	}
	if len(errs) > 0 {
		return "", nil, false, fmt.Errorf("repair: %s", strings.Join(errs, "; "))
	}
	return fixed, validate(fixed), true, nil
}

// CheckComposition is the fast local syntax/structure check applied to
// composition code before it is accepted: non-empty, a composition
// export present, and brackets balanced. It is deliberately shallow —
// deep validation happens in the render stage.
func CheckComposition(code string) []string {
	var diags []string
	if strings.TrimSpace(code) == "" {
		return []string{"composition code is empty"}
	}
	if !strings.Contains(code, "export") {
		diags = append(diags, "composition code has no export")
	}
	if !strings.Contains(code, "Composition") {
		diags = append(diags, "composition code does not declare a Composition")
	}
	diags = append(diags, bracketDiagnostics(code)...)
	return diags
}

var bracketPairs = map[rune]rune{')': '(', ']': '[', '}': '{'}

// bracketDiagnostics reports unbalanced (), [], {} outside string and
// template literals.
func bracketDiagnostics(code string) []string {
	var stack []rune
	var quote rune // active ' " or ` literal, 0 when none
	escaped := false
	for _, c := range code {
		if escaped {
			escaped = false
			continue
		}
		if quote != 0 {
			switch c {
			case '\\':
				escaped = true
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '(', '[', '{':
			stack = append(stack, c)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != bracketPairs[c] {
				return []string{fmt.Sprintf("unbalanced %q", c)}
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return []string{fmt.Sprintf("unclosed %q", stack[len(stack)-1])}
	}
	return nil
}
