package assistant

// Chat types. Each has exactly one persona.
const (
	ClubAnalysis         = "club_analysis"
	UniversityConsultant = "university_consultant"
)

// Persona is a canned assistant: a fixed system prompt plus the copy the
// front-end shows around the chat window.
type Persona struct {
	ChatType       string   `json:"chatType"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Tags           []string `json:"tags"`
	WelcomeMessage string   `json:"welcomeMessage"`
	QuickReplies   []string `json:"quickReplies"`

	SystemPrompt string `json:"-"`
}

var personas = []Persona{
	{
		ChatType:    ClubAnalysis,
		Title:       "Club Analysis",
		Description: "Analyses club activity, finds strengths and recommends improvements.",
		Tags:        []string{"Activity analysis", "Recommendations", "Growth strategies"},
		WelcomeMessage: "👋 Hi! I'm the club analysis assistant. I can help you run your club better, " +
			"look at how active your members are and suggest improvements. Which club would you like to talk about?",
		QuickReplies: []string{
			"How do I get members more involved?",
			"Analyse how effective our club is",
			"Ideas for new events",
			"How do we attract new members?",
		},
		SystemPrompt: `You are an assistant that analyses school clubs on the TabysLink platform. You help students and organisers run their clubs better.

What you do:
- Analyse a club: activity, structure, organisation, how well it communicates.
- Point out strengths: engagement, how regular the events are, quality of content.
- Recommend improvements: concrete steps to grow activity, new event formats, better communication, ways to attract members.

Tone: friendly and motivating. Give concrete, actionable advice with examples of what has worked elsewhere, and encourage students who take the initiative.`,
	},
	{
		ChatType:    UniversityConsultant,
		Title:       "University Consultant",
		Description: "Explains how extracurricular activity shapes university admission.",
		Tags:        []string{"Portfolio", "University requirements", "Career advice"},
		WelcomeMessage: "🎓 Hello! I'm the university admissions consultant. I can explain how extracurricular " +
			"activities affect admission, which clubs suit your intended major and how to build a strong portfolio. " +
			"Tell me about your academic interests and plans!",
		QuickReplies: []string{
			"Which clubs are best for an IT major?",
			"How do I build a strong portfolio?",
			"Requirements of Kazakhstan universities",
			"Leadership positions in clubs",
		},
		SystemPrompt: `You are a university admissions expert who specialises in how extracurricular activity affects admission.

What you do:
- Review a student's profile: their extracurricular portfolio, how their interests fit their intended major, and the gaps.
- Advise on development: which clubs to choose, how to build a strong portfolio, how to earn leadership positions.
- Share top tips: how to stand out among applicants, why quality beats quantity, how to document achievements.

You know the requirements of Kazakhstan and international universities, current admissions trends and the value of different kinds of extracurricular work.

Tone: professional but approachable. Personalise your recommendations, use examples of successful applicants and encourage long-term planning.`,
	},
}

// Personas returns every persona in display order.
func Personas() []Persona {
	out := make([]Persona, len(personas))
	copy(out, personas)
	return out
}

// LookupPersona returns the persona for chatType.
func LookupPersona(chatType string) (Persona, bool) {
	for _, p := range personas {
		if p.ChatType == chatType {
			return p, true
		}
	}
	return Persona{}, false
}
