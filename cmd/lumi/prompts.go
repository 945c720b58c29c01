package main

import (
	"fmt"
	"strings"
)

// maxQuizSourceRunes is how much lesson content is embedded in a quiz prompt.
const maxQuizSourceRunes = 2000

const inferenceFallbackText = "Create a general study session."

const chatInstruction = "Respond helpfully and educationally. Explain clearly, check the student's " +
	"understanding, and encourage them to keep learning."

func lessonPrompt(subject, topic, difficulty string, duration int) string {
	return fmt.Sprintf(`Create a %s level lesson about "%s" in the subject of %s.
The lesson should take about %d minutes to study.

Include:
- an engaging introduction
- 3 to 5 learning objectives
- 5 to 7 key points
- detailed content that teaches the topic step by step
- a short summary
- optional practice exercises

Respond with a JSON object with exactly these keys:
{
  "introduction": "string",
  "objectives": ["string"],
  "key_points": ["string"],
  "detailed_content": "string",
  "summary": "string",
  "practice_exercises": ["string"]
}`, difficulty, topic, subject, duration)
}

// truncateRunes keeps the first n runes of s and appends "..." when anything was cut.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func quizPrompt(lessonContent, subject, topic, difficulty string, numQuestions int) string {
	return fmt.Sprintf(`Create a %s level quiz with %d multiple choice questions about "%s" (%s).
Base the questions on this lesson:

%s

Every question must have exactly 4 options, one correct answer that matches one of the
options exactly, and a short explanation of why it is correct.

Respond with a JSON object in this format:
{
  "questions": [
    {
      "question": "string",
      "options": ["string", "string", "string", "string"],
      "correct_answer": "string",
      "explanation": "string"
    }
  ]
}`, difficulty, numQuestions, topic, subject, truncateRunes(lessonContent, maxQuizSourceRunes))
}

func chatPrompt(message, topic string, history []string) string {
	var parts []string
	if t := strings.TrimSpace(topic); t != "" {
		parts = append(parts, "Topic: "+t)
	}
	if len(history) > 0 {
		parts = append(parts, "Previous context:\n"+strings.Join(history, "\n"))
	}
	parts = append(parts, message, chatInstruction)
	return strings.Join(parts, "\n\n")
}

func inferencePrompt(freeText string) string {
	if strings.TrimSpace(freeText) == "" {
		freeText = inferenceFallbackText
	}
	return fmt.Sprintf(`A student asked for a study session with this request:

"%s"

Extract the lesson details from the request. Respond with a JSON object:
{
  "subject": "the broad subject, e.g. Mathematics",
  "topic": "the specific topic, e.g. Quadratic equations",
  "difficulty": "beginner, intermediate or advanced",
  "duration": "lesson length in minutes, a number from 15 to 120",
  "num_questions": "quiz length, a number from 3 to 12"
}
Leave a field out when the request gives no hint about it.`, freeText)
}
