package main

import (
	"context"
	"encoding/json"

	"github.com/danieldreier/mcp-lumi/internal/llm"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	serverName    = "Lumi Tutor MCP"
	serverVersion = "1.0.0"
	personasURI   = "lumi://personas"
)

const lumiServerInfo = `
Lumi is an AI tutor that turns any topic into lessons, quizzes and conversations.
When using this server, follow this learning loop:

1. LESSON: call generate_lesson with a subject and topic, or just a free text prompt.
   Present the lesson section by section instead of pasting it all at once.
2. QUIZ: call generate_quiz with the lessonId. Ask one question at a time and never
   reveal correct_answer or explanation before the student answers.
3. GRADE: collect every answer, then call submit_quiz. Walk through the explanations
   of the questions the student missed.
4. COMPLETE: when the student has worked through the lesson, call complete_lesson so
   they earn its XP.
5. REVIEW: start later sessions with get_due_reviews and revisit the most urgent lessons.
6. CHAT: use chat_with_student for follow-up questions in the student's persona.

userId is optional on every tool. When it is missing the server uses its default user.
`

// personaResource is the JSON served at lumi://personas.
type personaResource struct {
	Name     string `json:"name"`
	Preamble string `json:"preamble"`
}

func lessonDetailOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("userId",
			mcp.Description("The student's user id. Defaults to the server's default user"),
		),
		mcp.WithString("subject",
			mcp.Description("Broad subject, e.g. Mathematics"),
		),
		mcp.WithString("topic",
			mcp.Description("Specific topic, e.g. Quadratic equations"),
		),
		mcp.WithString("difficulty",
			mcp.Description("beginner, intermediate or advanced"),
		),
		mcp.WithString("prompt",
			mcp.Description("Free text request. Missing details are inferred from it"),
		),
		mcp.WithString("persona",
			mcp.Description("Tutor persona: friendly, strict, fun or scholar. Defaults to the student's persona"),
		),
		mcp.WithString("model",
			mcp.Description("Override the generative model for this call"),
		),
	}
}

func generateLessonTool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Generate a structured lesson with objectives, key points, detailed content, a summary " +
				"and practice exercises, and save it to the student's library. " +
				"Any detail left out is inferred from the prompt. Creating a lesson earns 10 XP; " +
				"xpReward is what completing it is worth.",
		),
		mcp.WithNumber("duration",
			mcp.Description("Lesson length in minutes, 15 to 120"),
		),
	}
	return mcp.NewTool("generate_lesson", append(opts, lessonDetailOptions()...)...)
}

func generateQuizTool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Generate a four-option multiple choice quiz on a lesson. " +
				"Without lessonId a lesson is generated first from the other details. " +
				"Present one question at a time and keep correct answers hidden until the student answers.",
		),
		mcp.WithString("lessonId",
			mcp.Description("The lesson to quiz on"),
		),
		mcp.WithNumber("numQuestions",
			mcp.Description("Number of questions, 3 to 12. Defaults to 5"),
		),
	}
	return mcp.NewTool("generate_quiz", append(opts, lessonDetailOptions()...)...)
}

func chatTool() mcp.Tool {
	return mcp.NewTool("chat_with_student",
		mcp.WithDescription(
			"Answer a student's message as Lumi and save the exchange. Each message earns 5 XP.",
		),
		mcp.WithString("userId",
			mcp.Required(),
			mcp.Description("The student's user id"),
		),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The student's message"),
		),
		mcp.WithString("topic",
			mcp.Description("What the conversation is about"),
		),
		mcp.WithString("persona",
			mcp.Description("Tutor persona: friendly, strict, fun or scholar"),
		),
		mcp.WithArray("context",
			mcp.Description("Earlier lines of the conversation, oldest first"),
		),
		mcp.WithString("model",
			mcp.Description("Override the generative model for this call"),
		),
	)
}

func completeLessonTool() mcp.Tool {
	return mcp.NewTool("complete_lesson",
		mcp.WithDescription("Mark a lesson completed and award its XP reward."),
		mcp.WithString("userId",
			mcp.Description("The student's user id. Defaults to the server's default user"),
		),
		mcp.WithString("lessonId",
			mcp.Required(),
			mcp.Description("The completed lesson"),
		),
		mcp.WithNumber("timeSpent",
			mcp.Description("Minutes spent on the lesson"),
		),
	)
}

func submitQuizTool() mcp.Tool {
	return mcp.NewTool("submit_quiz",
		mcp.WithDescription(
			"Grade the student's quiz answers, award XP for the score and schedule the lesson for review. " +
				"Answers may be the option text or its letter A-D, in question order.",
		),
		mcp.WithString("userId",
			mcp.Description("The student's user id. Defaults to the server's default user"),
		),
		mcp.WithString("quizId",
			mcp.Required(),
			mcp.Description("The quiz being answered"),
		),
		mcp.WithArray("answers",
			mcp.Required(),
			mcp.Description("One answer per question, in order"),
		),
	)
}

func dueReviewsTool() mcp.Tool {
	return mcp.NewTool("get_due_reviews",
		mcp.WithDescription("List lessons due for spaced repetition review, most urgent first."),
		mcp.WithString("userId",
			mcp.Description("The student's user id. Defaults to the server's default user"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of reviews. Defaults to 10"),
		),
	)
}

func profileTool() mcp.Tool {
	return mcp.NewTool("get_profile",
		mcp.WithDescription("Show the student's XP, level and the XP needed for the next level."),
		mcp.WithString("userId",
			mcp.Description("The student's user id. Defaults to the server's default user"),
		),
	)
}

// handlePersonasResource lists the tutor personas and their prompt preambles.
func handlePersonasResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	personas := make([]personaResource, 0, len(llm.Personas()))
	for _, p := range llm.Personas() {
		personas = append(personas, personaResource{Name: string(p), Preamble: llm.Preamble(p)})
	}
	jsonBytes, err := json.MarshalIndent(personas, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      personasURI,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}

// newServer builds the MCP server with every tool bound to svc.
func newServer(svc *TutorService) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithInstructions(lumiServerInfo),
		server.WithResourceCapabilities(true, true),
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)

	tools := []struct {
		tool    mcp.Tool
		handler toolHandler
	}{
		{generateLessonTool(), handleGenerateLesson},
		{generateQuizTool(), handleGenerateQuiz},
		{chatTool(), handleChatWithStudent},
		{completeLessonTool(), handleCompleteLesson},
		{submitQuizTool(), handleSubmitQuiz},
		{dueReviewsTool(), handleGetDueReviews},
		{profileTool(), handleGetProfile},
	}
	for _, t := range tools {
		h := instrument(t.tool.Name, t.handler)
		s.AddTool(t.tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return h(withService(ctx, svc), request)
		})
	}

	s.AddResource(mcp.NewResource(personasURI, "Tutor personas",
		mcp.WithResourceDescription("The personas Lumi can teach in and the preamble each one adds to prompts"),
		mcp.WithMIMEType("application/json"),
	), handlePersonasResource)

	return s
}
