package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/noah-isme/edugen-studio/internal/models"
)

func printReview(out io.Writer, review models.Review) {
	if review.Request != nil {
		fmt.Fprintf(out, "%s (%s, difficulty %d)\n\n", review.Request.Subject, review.Request.GradeLevel, review.Request.Difficulty)
	}
	if review.Empty {
		fmt.Fprintln(out, review.Message)
		return
	}
	for _, view := range review.Views {
		fmt.Fprintf(out, "== %s ==\n", view.Title)
		if view.Failed() {
			fmt.Fprintf(out, "  ! %s\n\n", view.Error.Message)
			continue
		}
		view.Block.Accept(textPrinter{out: out})
		fmt.Fprintln(out)
	}
}

// textPrinter writes one block as indented plain text.
type textPrinter struct {
	out io.Writer
}

func (p textPrinter) VisitQCM(b *models.QCMBlock) {
	for i, q := range b.Questions {
		fmt.Fprintf(p.out, "%d. %s\n", i+1, q.Question)
		for j, option := range q.Options {
			mark := " "
			if q.IsCorrect(j) {
				mark = "*"
			}
			fmt.Fprintf(p.out, "   %s %c) %s\n", mark, 'a'+rune(j%26), option)
		}
	}
}

func (p textPrinter) VisitExercises(b *models.ExercisesBlock) {
	for i, ex := range b.Exercises {
		fmt.Fprintf(p.out, "%d. %s\n   Solution: %s\n", i+1, ex.Statement, ex.Solution)
	}
}

func (p textPrinter) VisitFillInTheBlanks(b *models.FillInTheBlanksBlock) {
	for i, text := range b.Texts {
		fmt.Fprintf(p.out, "%d. %s\n   Answers: %s\n", i+1, text.Text, strings.Join(text.Answers, ", "))
	}
}

func (p textPrinter) VisitSummary(b *models.SummaryBlock) {
	for _, sheet := range b.Summaries {
		fmt.Fprintf(p.out, "%s\n", sheet.Content)
	}
}

func (p textPrinter) VisitConceptMap(b *models.ConceptMapBlock) {
	for _, m := range b.Maps {
		fmt.Fprintf(p.out, "%s\n", m.Description)
	}
}

func (p textPrinter) VisitRaw(b *models.RawBlock) {
	fmt.Fprintln(p.out, b.Dump)
}
