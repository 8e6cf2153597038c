package services

import (
	"fmt"
	"strings"
)

// Topic pools the question generator draws from when no question bank is
// supplied by the caller.
var part1Topics = []string{
	"your hometown",
	"your work or studies",
	"your daily routine",
	"your hobbies and free time",
	"food and cooking",
	"music you enjoy",
	"travel and holidays",
	"the weather in your country",
	"sports and exercise",
	"books and reading",
}

var part2CueCards = []string{
	"Describe a memorable trip you have taken.",
	"Describe a person who has influenced you.",
	"Describe a skill you would like to learn.",
	"Describe a place where you like to relax.",
	"Describe an important decision you have made.",
	"Describe a gift you gave or received.",
	"Describe a book or film that impressed you.",
	"Describe a celebration you remember well.",
}

var part3Themes = []string{
	"how technology changes the way people communicate",
	"the role of tourism in local economies",
	"whether schools should teach practical life skills",
	"the influence of advertising on consumer choices",
	"how cities can encourage healthier lifestyles",
	"the value of learning foreign languages",
	"work-life balance in modern society",
}

// Deterministic fallbacks substituted when the provider call fails.
// Selection is index modulo list length, per part.
var fallbackQuestions = map[int][]string{
	1: {
		"Can you tell me about your hometown?",
		"What do you do in your free time?",
		"Do you work or are you a student?",
		"What kind of food do you enjoy?",
		"How do you usually spend your weekends?",
	},
	2: {
		"Describe a place you have visited that you found interesting. You should say where it is, when you went there, and explain why you found it interesting.",
		"Describe a person you admire. You should say who they are, how you know them, and explain why you admire them.",
		"Describe something you own that is important to you. You should say what it is, how long you have had it, and explain why it matters to you.",
	},
	3: {
		"Do you think people travel more now than in the past? Why might that be?",
		"How has technology changed the way people spend their free time?",
		"What qualities make someone a good role model for young people?",
		"Do you think cities will continue to grow in the future?",
	},
}

var fallbackAnswers = map[int]string{
	1: "I come from a mid-sized coastal city. It is known for its seafood and its old harbour district, and although it has grown a lot in recent years, it still feels like a friendly place because most people know their neighbours.",
	2: "I'd like to talk about a trip I took to the mountains two years ago. I went with two close friends during the spring holiday, and we spent four days walking between small villages. What made it memorable was the contrast with my daily life in the city: there was no traffic, the air was clear, and every evening we ate with local families. Looking back, it taught me how little I actually need to feel content, and I have wanted to go back ever since.",
	3: "I think there are two main reasons for this trend. Firstly, travel has become far more affordable, so experiences that used to be reserved for the wealthy are now open to most people. For example, budget airlines have made weekend trips abroad quite normal. Secondly, social media constantly exposes people to other places, which naturally creates the desire to see them in person.",
}

var fallbackSuggestions = []string{
	"Try to extend your answers with reasons and examples.",
	"Use a wider range of linking words to connect your ideas.",
	"Practice speaking at a steady pace without long pauses.",
}

const fallbackFeedback = "Your response addressed the question. Work on developing your ideas more fully and varying your vocabulary."

const evaluationSystemPrompt = `You are an experienced speaking examiner. Score the candidate's spoken response on the 1-9 band scale. Respond with JSON only, in exactly this shape:
{"score": <number 1-9, halves allowed>, "feedback": "<2-3 sentences>", "suggestions": ["<tip>", "<tip>", "<tip>"]}`

func buildQuestionPrompt(part, index int, topic string, previous []string) (system string, user string) {
	switch part {
	case 1:
		system = "You are a speaking examiner conducting the interview section of a speaking test. Ask short, personal questions. Reply with the question only."
		user = fmt.Sprintf("Ask question %d of 5 about %s. Keep it to one sentence, suitable for a short spoken answer.", index+1, topic)
	case 2:
		system = "You are a speaking examiner for the long-turn section of a speaking test. Produce a cue card task. Reply with the task only."
		user = fmt.Sprintf("Write a cue card based on: %q. Use the form 'Describe ... You should say: ... and explain ...'. Three bullet points.", topic)
	default:
		system = "You are a speaking examiner leading the two-way discussion section of a speaking test. Ask one abstract, opinion-based question. Reply with the question only."
		user = fmt.Sprintf("Ask discussion question %d of 5 on the theme of %s.", index+1, topic)
		if len(previous) > 0 {
			user += fmt.Sprintf(" The candidate has said so far: %q. Build on their ideas where natural.", strings.Join(previous, " | "))
		}
	}
	return system, user
}

func buildEvaluationPrompt(text string, part int) string {
	return fmt.Sprintf("Part %d response to evaluate:\n%s", part, text)
}

// answerTemplate returns the structural instruction per part, plus a rough
// output budget in tokens.
func answerTemplate(part int) (structure string, maxTokens int) {
	switch part {
	case 1:
		return "direct answer, then a reason, then a short example", 150
	case 2:
		return "introduction, details of the experience, your feelings, a closing reflection", 400
	default:
		return "state your point, explain it, support it with an example", 250
	}
}

func buildModelAnswerPrompt(question string, part int, userResponse string) (system string, user string) {
	structure, _ := answerTemplate(part)
	system = fmt.Sprintf("You are a speaking coach. Write a band 8-9 spoken answer following this structure: %s. Use natural spoken English. Reply with the answer only.", structure)
	if strings.TrimSpace(userResponse) != "" {
		user = fmt.Sprintf("Question: %s\n\nThe candidate answered: %q\n\nImprove this answer to band 8-9 level while keeping the candidate's personal content and experiences.", question, userResponse)
	} else {
		user = fmt.Sprintf("Question: %s", question)
	}
	return system, user
}

func topicForSlot(part, index int, pick func(n int) int) string {
	switch part {
	case 1:
		return part1Topics[pick(len(part1Topics))]
	case 2:
		return part2CueCards[pick(len(part2CueCards))]
	default:
		return part3Themes[pick(len(part3Themes))]
	}
}

func fallbackQuestionFor(part, index int) string {
	list := fallbackQuestions[part]
	if len(list) == 0 {
		list = fallbackQuestions[1]
	}
	return list[index%len(list)]
}

func fallbackAnswerFor(part int) string {
	if a, ok := fallbackAnswers[part]; ok {
		return a
	}
	return fallbackAnswers[1]
}
