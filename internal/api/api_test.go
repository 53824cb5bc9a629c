package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intermernet/tabyslink/internal/assistant"
	"github.com/intermernet/tabyslink/internal/config"
	"github.com/intermernet/tabyslink/internal/database"
	"github.com/intermernet/tabyslink/internal/metrics"
	"github.com/intermernet/tabyslink/internal/realtime"
)

type fakeGenerator struct {
	GenerateFunc func(ctx context.Context, req assistant.GenerateRequest) (string, error)
	calls        []assistant.GenerateRequest
}

func (f *fakeGenerator) Generate(ctx context.Context, req assistant.GenerateRequest) (string, error) {
	f.calls = append(f.calls, req)
	return f.GenerateFunc(ctx, req)
}

type sentEmail struct {
	To, Member, Club string
	Count            int
}

type fakeMailer struct {
	sent chan sentEmail
}

func (f *fakeMailer) SendMemberJoinedEmail(to, member, club, _ string, count int) error {
	f.sent <- sentEmail{To: to, Member: member, Club: club, Count: count}
	return nil
}

type testEnv struct {
	t      *testing.T
	server *Server
	router *chi.Mux
	db     *database.Service
	broker *realtime.Broker
	gen    *fakeGenerator
	mailer *fakeMailer
}

func newTestEnv(t *testing.T, ratePerMinute int) *testEnv {
	t.Helper()
	dir := t.TempDir()

	db, err := database.NewService(filepath.Join(dir, "api.db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.InitSchema(context.Background()))

	cfg := &config.Config{
		FrontendURL:            "http://app.example.com",
		JwtSecret:              "test-secret",
		AvatarPath:             dir,
		AssistantRatePerMinute: ratePerMinute,
		DefaultSchoolName:      "School No. 1",
		DefaultClubImageURL:    "https://img.example.com/default.png",
	}

	gen := &fakeGenerator{GenerateFunc: func(context.Context, assistant.GenerateRequest) (string, error) {
		return "Try a weekly meetup.", nil
	}}
	broker := realtime.NewBroker()
	mailer := &fakeMailer{sent: make(chan sentEmail, 4)}
	chat := assistant.NewService(gen, assistant.NewDBStore(db), assistant.Options{HistoryTurns: cfg.AssistantHistoryTurns})

	server := NewServer(cfg, db, broker, mailer, chat, metrics.New(broker.Connected))
	router := chi.NewRouter()
	server.RegisterRoutes(router)

	return &testEnv{t: t, server: server, router: router, db: db, broker: broker, gen: gen, mailer: mailer}
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

// register creates a user and returns its session token and id.
func (e *testEnv) register(name string) (string, string) {
	e.t.Helper()
	rec := e.do("POST", "/api/v1/users/register", "", envelope{
		"displayName": name,
		"email":       name + "@example.com",
		"password":    "correct-horse",
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Token string       `json:"token"`
		User  UserResponse `json:"user"`
	}
	decode(e.t, rec, &resp)
	return resp.Token, resp.User.ID
}

func (e *testEnv) createClub(token, name, category string) ClubResponse {
	e.t.Helper()
	rec := e.do("POST", "/api/v1/clubs", token, envelope{"name": name, "category": category, "description": name + " club"})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		Club ClubResponse `json:"club"`
	}
	decode(e.t, rec, &resp)
	return resp.Club
}

func (e *testEnv) createEvent(token, clubID string, extra envelope) EventResponse {
	e.t.Helper()
	body := envelope{
		"title":     "Robot fight",
		"clubId":    clubID,
		"eventDate": time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
		"location":  "Room 205",
	}
	for k, v := range extra {
		body[k] = v
	}
	rec := e.do("POST", "/api/v1/events", token, body)
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		Event EventResponse `json:"event"`
	}
	decode(e.t, rec, &resp)
	return resp.Event
}

func TestRegisterLoginSession(t *testing.T) {
	env := newTestEnv(t, 60)
	token, userID := env.register("aruzhan")

	rec := env.do("POST", "/api/v1/users/register", "", envelope{
		"displayName": "Other", "email": "ARUZHAN@example.com", "password": "correct-horse",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do("POST", "/api/v1/users/login", "", envelope{"email": "aruzhan@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do("POST", "/api/v1/users/login", "", envelope{"email": "aruzhan@example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusOK, rec.Code)

	var session struct {
		User      *UserResponse `json:"user"`
		IsLoading bool          `json:"isLoading"`
	}
	decode(t, env.do("GET", "/api/v1/auth/session", token, nil), &session)
	require.NotNil(t, session.User)
	assert.Equal(t, userID, session.User.ID)
	assert.False(t, session.IsLoading)

	session.User = nil
	decode(t, env.do("GET", "/api/v1/auth/session", "", nil), &session)
	assert.Nil(t, session.User)

	assert.Equal(t, http.StatusUnauthorized, env.do("GET", "/api/v1/users/me", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do("GET", "/api/v1/users/me", "garbage", nil).Code)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t, 60)
	tests := []struct {
		name string
		body envelope
	}{
		{name: "missing name", body: envelope{"email": "a@example.com", "password": "correct-horse"}},
		{name: "short password", body: envelope{"displayName": "A", "email": "a@example.com", "password": "short"}},
		{name: "bad email", body: envelope{"displayName": "A", "email": "nope", "password": "correct-horse"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, env.do("POST", "/api/v1/users/register", "", tt.body).Code)
		})
	}
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t, 60)
	token, _ := env.register("timur")

	rec := env.do("PATCH", "/api/v1/users/me", token, envelope{"schoolName": "Lyceum 7", "grade": "10B"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		User UserResponse `json:"user"`
	}
	decode(t, rec, &resp)
	require.NotNil(t, resp.User.SchoolName)
	assert.Equal(t, "Lyceum 7", *resp.User.SchoolName)

	assert.Equal(t, http.StatusBadRequest, env.do("PATCH", "/api/v1/users/me", token, envelope{}).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do("PATCH", "/api/v1/users/me", token,
		envelope{"oldPassword": "not-it-at-all", "newPassword": "brand-new-pass"}).Code)
	assert.Equal(t, http.StatusOK, env.do("PATCH", "/api/v1/users/me", token,
		envelope{"oldPassword": "correct-horse", "newPassword": "brand-new-pass"}).Code)

	rec = env.do("POST", "/api/v1/users/login", "", envelope{"email": "timur@example.com", "password": "brand-new-pass"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// New clubs pick up the creator's school.
	club := env.createClub(token, "Chess", "sports")
	require.NotNil(t, club.SchoolName)
	assert.Equal(t, "Lyceum 7", *club.SchoolName)
}

func TestCreateClub(t *testing.T) {
	env := newTestEnv(t, 60)
	token, userID := env.register("owner")

	club := env.createClub(token, "Robotics", "Technology")
	assert.Equal(t, "technology", club.Category)
	assert.Equal(t, 1, club.MemberCount)
	assert.Equal(t, userID, club.CreatorID)
	require.NotNil(t, club.ImageURL)
	assert.Equal(t, "https://img.example.com/default.png", *club.ImageURL)
	require.NotNil(t, club.SchoolName)
	assert.Equal(t, "School No. 1", *club.SchoolName)

	for _, body := range []envelope{
		{"name": "", "category": "science"},
		{"name": "X", "category": "all"},
		{"name": "X", "category": "cooking"},
	} {
		assert.Equal(t, http.StatusBadRequest, env.do("POST", "/api/v1/clubs", token, body).Code, body)
	}

	var members struct {
		Members []MemberResponse `json:"members"`
	}
	decode(t, env.do("GET", "/api/v1/clubs/"+club.ID+"/members", token, nil), &members)
	require.Len(t, members.Members, 1)
	assert.Equal(t, database.RoleAdmin, members.Members[0].Role)
}

func TestListClubsFilters(t *testing.T) {
	env := newTestEnv(t, 60)
	token, _ := env.register("owner")
	env.createClub(token, "Robotics", "technology")
	env.createClub(token, "Chess", "sports")
	env.createClub(token, "Eco Patrol", "environment")

	list := func(query string) []string {
		var resp struct {
			Clubs []ClubResponse `json:"clubs"`
		}
		decode(t, env.do("GET", "/api/v1/clubs"+query, "", nil), &resp)
		names := []string{}
		for _, c := range resp.Clubs {
			names = append(names, c.Name)
		}
		return names
	}

	assert.Equal(t, []string{"Eco Patrol", "Chess", "Robotics"}, list(""))
	assert.Equal(t, []string{"Chess"}, list("?category=Sports"))
	assert.Equal(t, []string{"Robotics"}, list("?q=ROBO&category=all"))
	assert.Equal(t, []string{}, list("?category=arts"))

	var cats struct {
		Categories []struct {
			ID string `json:"id"`
		} `json:"categories"`
	}
	decode(t, env.do("GET", "/api/v1/clubs/categories", "", nil), &cats)
	assert.Len(t, cats.Categories, 8)
}

func TestJoinClub(t *testing.T) {
	env := newTestEnv(t, 60)
	ownerToken, ownerID := env.register("owner")
	club := env.createClub(ownerToken, "Robotics", "technology")

	// The owner is listening on their stream.
	stream := env.broker.AddClient(ownerID)

	memberToken, memberID := env.register("member")
	rec := env.do("POST", "/api/v1/clubs/"+club.ID+"/join", memberToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Club ClubResponse `json:"club"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, 2, resp.Club.MemberCount)

	var msg struct {
		Type    string                       `json:"type"`
		Payload realtime.MemberJoinedPayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(<-stream, &msg))
	assert.Equal(t, realtime.TypeMemberJoined, msg.Type)
	assert.Equal(t, memberID, msg.Payload.UserID)
	assert.Equal(t, 2, msg.Payload.MemberCount)

	rec = env.do("POST", "/api/v1/clubs/"+club.ID+"/join", memberToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already a member")

	n, err := env.db.CountClubMembers(context.Background(), env.db.DB(), club.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var mine struct {
		Clubs []ClubResponse `json:"clubs"`
	}
	decode(t, env.do("GET", "/api/v1/users/me/clubs", memberToken, nil), &mine)
	require.Len(t, mine.Clubs, 1)
	assert.Equal(t, club.ID, mine.Clubs[0].ID)
}

func TestJoinClubEmailsOfflineCreator(t *testing.T) {
	env := newTestEnv(t, 60)
	ownerToken, _ := env.register("owner")
	club := env.createClub(ownerToken, "Robotics", "technology")

	memberToken, _ := env.register("member")
	require.Equal(t, http.StatusOK, env.do("POST", "/api/v1/clubs/"+club.ID+"/join", memberToken, nil).Code)

	select {
	case sent := <-env.mailer.sent:
		assert.Equal(t, sentEmail{To: "owner@example.com", Member: "member", Club: "Robotics", Count: 2}, sent)
	case <-time.After(2 * time.Second):
		t.Fatal("no email sent")
	}
}

func TestJoinClubMissingOrDeleted(t *testing.T) {
	env := newTestEnv(t, 60)
	ownerToken, _ := env.register("owner")
	memberToken, _ := env.register("member")
	club := env.createClub(ownerToken, "Robotics", "technology")

	assert.Equal(t, http.StatusNotFound, env.do("POST", "/api/v1/clubs/club_missing/join", memberToken, nil).Code)

	assert.Equal(t, http.StatusForbidden, env.do("DELETE", "/api/v1/clubs/"+club.ID, memberToken, nil).Code)
	require.Equal(t, http.StatusOK, env.do("DELETE", "/api/v1/clubs/"+club.ID, ownerToken, nil).Code)

	assert.Equal(t, http.StatusNotFound, env.do("POST", "/api/v1/clubs/"+club.ID+"/join", memberToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do("GET", "/api/v1/clubs/"+club.ID, memberToken, nil).Code)
}

func TestUpdateClub(t *testing.T) {
	env := newTestEnv(t, 60)
	ownerToken, _ := env.register("owner")
	otherToken, _ := env.register("other")
	club := env.createClub(ownerToken, "Robotics", "technology")

	assert.Equal(t, http.StatusForbidden, env.do("PATCH", "/api/v1/clubs/"+club.ID, otherToken, envelope{"name": "Mine"}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do("PATCH", "/api/v1/clubs/"+club.ID, ownerToken, envelope{"category": "all"}).Code)

	rec := env.do("PATCH", "/api/v1/clubs/"+club.ID, ownerToken, envelope{"name": "Robotics & AI", "category": "science"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Club ClubResponse `json:"club"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "Robotics & AI", resp.Club.Name)
	assert.Equal(t, "science", resp.Club.Category)
}

func TestCreateEventValidation(t *testing.T) {
	env := newTestEnv(t, 60)
	ownerToken, _ := env.register("owner")
	outsiderToken, _ := env.register("outsider")
	club := env.createClub(ownerToken, "Robotics", "technology")
	date := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)

	tests := []struct {
		name  string
		token string
		body  envelope
		want  int
	}{
		{name: "missing title", token: ownerToken, body: envelope{"clubId": club.ID, "eventDate": date}, want: http.StatusBadRequest},
		{name: "bad date", token: ownerToken, body: envelope{"title": "T", "clubId": club.ID, "eventDate": "tomorrow"}, want: http.StatusBadRequest},
		{name: "zero capacity", token: ownerToken, body: envelope{"title": "T", "clubId": club.ID, "eventDate": date, "maxParticipants": 0}, want: http.StatusBadRequest},
		{name: "online without link", token: ownerToken, body: envelope{"title": "T", "clubId": club.ID, "eventDate": date, "isOnline": true}, want: http.StatusBadRequest},
		{name: "unknown club", token: ownerToken, body: envelope{"title": "T", "clubId": "club_missing", "eventDate": date}, want: http.StatusNotFound},
		{name: "not a member", token: outsiderToken, body: envelope{"title": "T", "clubId": club.ID, "eventDate": date}, want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do("POST", "/api/v1/events", tt.token, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	online := env.createEvent(ownerToken, club.ID, envelope{"isOnline": true, "meetingLink": "https://meet.example.com/r"})
	assert.Nil(t, online.Location)
	require.NotNil(t, online.MeetingLink)
	assert.Equal(t, database.EventUpcoming, online.Status)
	assert.Nil(t, online.MaxParticipants)
}

func TestRSVP(t *testing.T) {
	env := newTestEnv(t, 60)
	ownerToken, ownerID := env.register("owner")
	club := env.createClub(ownerToken, "Robotics", "technology")
	event := env.createEvent(ownerToken, club.ID, envelope{"maxParticipants": 2})

	stream := env.broker.AddClient(ownerID)

	type rsvpResp struct {
		Event EventResponse `json:"event"`
		RSVP  RSVPResponse  `json:"rsvp"`
	}
	rsvp := func(token, status string) (int, rsvpResp) {
		rec := env.do("PUT", "/api/v1/events/"+event.ID+"/rsvp", token, envelope{"status": status})
		var resp rsvpResp
		if rec.Code == http.StatusOK {
			decode(t, rec, &resp)
		}
		return rec.Code, resp
	}

	aToken, aID := env.register("a")
	bToken, _ := env.register("b")
	cToken, _ := env.register("c")

	code, resp := rsvp(aToken, database.RSVPGoing)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, resp.Event.CurrentParticipants)

	var msg struct {
		Type    string                      `json:"type"`
		Payload realtime.RSVPUpdatedPayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(<-stream, &msg))
	assert.Equal(t, realtime.TypeRSVPUpdated, msg.Type)
	assert.Equal(t, aID, msg.Payload.UserID)

	code, resp = rsvp(bToken, database.RSVPGoing)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, resp.Event.CurrentParticipants)

	code, _ = rsvp(cToken, database.RSVPGoing)
	assert.Equal(t, http.StatusConflict, code)

	code, resp = rsvp(aToken, database.RSVPNotGoing)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, resp.Event.CurrentParticipants)
	assert.Equal(t, database.RSVPNotGoing, resp.RSVP.Status)

	code, _ = rsvp(cToken, "attending")
	assert.Equal(t, http.StatusBadRequest, code)

	rec := env.do("PUT", "/api/v1/events/event_missing/rsvp", cToken, envelope{"status": database.RSVPGoing})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var detail struct {
		Event  EventResponse `json:"event"`
		MyRSVP *RSVPResponse `json:"myRsvp"`
	}
	decode(t, env.do("GET", "/api/v1/events/"+event.ID, aToken, nil), &detail)
	require.NotNil(t, detail.MyRSVP)
	assert.Equal(t, database.RSVPNotGoing, detail.MyRSVP.Status)

	detail.MyRSVP = nil
	decode(t, env.do("GET", "/api/v1/events/"+event.ID, cToken, nil), &detail)
	assert.Nil(t, detail.MyRSVP)

	var rsvps struct {
		RSVPs []RSVPResponse `json:"rsvps"`
	}
	decode(t, env.do("GET", "/api/v1/events/"+event.ID+"/rsvps", aToken, nil), &rsvps)
	assert.Len(t, rsvps.RSVPs, 2)
}

func TestListEventsFilters(t *testing.T) {
	env := newTestEnv(t, 60)
	token, _ := env.register("owner")
	robotics := env.createClub(token, "Robotics", "technology")
	chess := env.createClub(token, "Chess", "sports")
	env.createEvent(token, robotics.ID, envelope{"title": "Hackathon"})
	env.createEvent(token, chess.ID, envelope{"title": "Blitz tournament"})

	list := func(query string) int {
		var resp struct {
			Events []EventResponse `json:"events"`
		}
		decode(t, env.do("GET", "/api/v1/events"+query, "", nil), &resp)
		return len(resp.Events)
	}

	assert.Equal(t, 2, list(""))
	assert.Equal(t, 1, list("?clubID="+chess.ID))
	assert.Equal(t, 1, list("?q=hack"))
	assert.Equal(t, 2, list("?status=upcoming"))
	assert.Equal(t, 0, list("?status=completed"))
}

func TestDashboardAndAchievements(t *testing.T) {
	env := newTestEnv(t, 60)
	ownerToken, _ := env.register("owner")
	memberToken, memberID := env.register("member")
	club := env.createClub(ownerToken, "Robotics", "technology")
	event := env.createEvent(ownerToken, club.ID, nil)

	require.Equal(t, http.StatusOK, env.do("POST", "/api/v1/clubs/"+club.ID+"/join", memberToken, nil).Code)
	require.Equal(t, http.StatusOK, env.do("PUT", "/api/v1/events/"+event.ID+"/rsvp", memberToken, envelope{"status": "going"}).Code)

	award := envelope{"userId": memberID, "title": "First build", "type": database.AchievementClubParticipation, "points": 15}
	assert.Equal(t, http.StatusForbidden, env.do("POST", "/api/v1/clubs/"+club.ID+"/achievements", memberToken, award).Code)
	require.Equal(t, http.StatusCreated, env.do("POST", "/api/v1/clubs/"+club.ID+"/achievements", ownerToken, award).Code)

	_, outsiderID := env.register("outsider")
	award["userId"] = outsiderID
	assert.Equal(t, http.StatusBadRequest, env.do("POST", "/api/v1/clubs/"+club.ID+"/achievements", ownerToken, award).Code)

	var dash struct {
		Stats struct {
			Clubs             int `json:"clubs"`
			UpcomingEvents    int `json:"upcomingEvents"`
			Achievements      int `json:"achievements"`
			AchievementPoints int `json:"achievementPoints"`
		} `json:"stats"`
		UpcomingEvents []EventResponse `json:"upcomingEvents"`
	}
	decode(t, env.do("GET", "/api/v1/dashboard", memberToken, nil), &dash)
	assert.Equal(t, 1, dash.Stats.Clubs)
	assert.Equal(t, 1, dash.Stats.UpcomingEvents)
	assert.Equal(t, 1, dash.Stats.Achievements)
	assert.Equal(t, 15, dash.Stats.AchievementPoints)
	require.Len(t, dash.UpcomingEvents, 1)
	assert.Equal(t, event.ID, dash.UpcomingEvents[0].ID)

	var list struct {
		Achievements []AchievementResponse `json:"achievements"`
	}
	decode(t, env.do("GET", "/api/v1/users/me/achievements", memberToken, nil), &list)
	require.Len(t, list.Achievements, 1)
	require.NotNil(t, list.Achievements[0].ClubID)
	assert.Equal(t, club.ID, *list.Achievements[0].ClubID)
}

func TestAssistantChat(t *testing.T) {
	env := newTestEnv(t, 60)
	token, _ := env.register("student")

	var personas struct {
		Personas []assistant.Persona `json:"personas"`
	}
	decode(t, env.do("GET", "/api/v1/assistant/personas", "", nil), &personas)
	assert.Len(t, personas.Personas, 2)
	assert.NotContains(t, env.do("GET", "/api/v1/assistant/personas", "", nil).Body.String(), "systemPrompt")

	path := "/api/v1/assistant/" + assistant.ClubAnalysis + "/messages"
	rec := env.do("POST", path, token, envelope{"content": "How do we grow?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Turns []assistant.Turn `json:"turns"`
	}
	decode(t, rec, &resp)
	require.Len(t, resp.Turns, 2)
	assert.Equal(t, "How do we grow?", resp.Turns[0].Content)
	assert.Equal(t, "Try a weekly meetup.", resp.Turns[1].Content)

	env.gen.GenerateFunc = func(context.Context, assistant.GenerateRequest) (string, error) {
		return "", errors.New("upstream down")
	}
	rec = env.do("POST", path, token, envelope{"content": "And then?"})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	require.Len(t, resp.Turns, 2)
	assert.Equal(t, assistant.ApologyMessage, resp.Turns[1].Content)

	// History is off by default: the second call carries no earlier turns.
	require.Len(t, env.gen.calls, 2)
	require.Len(t, env.gen.calls[1].Messages, 2)
	assert.Equal(t, "And then?", env.gen.calls[1].Messages[1].Content)

	// Only the successful exchange was stored, after the welcome turn.
	decode(t, env.do("GET", path, token, nil), &resp)
	assert.Len(t, resp.Turns, 3)

	assert.Equal(t, http.StatusBadRequest, env.do("POST", path, token, envelope{"content": "  "}).Code)
	assert.Equal(t, http.StatusNotFound, env.do("POST", "/api/v1/assistant/horoscope/messages", token, envelope{"content": "hi"}).Code)
	assert.Equal(t, http.StatusNotFound, env.do("GET", "/api/v1/assistant/horoscope/messages", token, nil).Code)
}

func TestAssistantRateLimit(t *testing.T) {
	env := newTestEnv(t, 2)
	token, _ := env.register("student")
	otherToken, _ := env.register("other")

	path := "/api/v1/assistant/" + assistant.UniversityConsultant + "/messages"
	assert.Equal(t, http.StatusOK, env.do("POST", path, token, envelope{"content": "one"}).Code)
	assert.Equal(t, http.StatusOK, env.do("POST", path, token, envelope{"content": "two"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do("POST", path, token, envelope{"content": "three"}).Code)

	// Budgets are per user.
	assert.Equal(t, http.StatusOK, env.do("POST", path, otherToken, envelope{"content": "one"}).Code)
}

func TestAssistantRateLimitUnknownChatType(t *testing.T) {
	env := newTestEnv(t, 1)
	token, _ := env.register("student")

	path := "/api/v1/assistant/" + assistant.ClubAnalysis + "/messages"
	require.Equal(t, http.StatusOK, env.do("POST", path, token, envelope{"content": "one"}).Code)
	require.Equal(t, http.StatusTooManyRequests, env.do("POST", path, token, envelope{"content": "two"}).Code)

	// Even when limited, unknown chat types are a 404 and never become a metric label.
	for i := 0; i < 5; i++ {
		rec := env.do("POST", fmt.Sprintf("/api/v1/assistant/junk%d/messages", i), token, envelope{"content": "hi"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	body := env.do("GET", "/metrics", "", nil).Body.String()
	assert.NotContains(t, body, "junk")
	assert.Contains(t, body, `tabyslink_assistant_turns_total{chat_type="club_analysis",outcome="rate_limited"} 1`)
}

func uploadAvatar(t *testing.T, env *testEnv, token, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("avatar", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("PUT", "/api/v1/users/me/avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func TestUpdateAvatar(t *testing.T) {
	env := newTestEnv(t, 60)
	token, userID := env.register("aliya")
	png := []byte("\x89PNG\r\n\x1a\nfake image bytes")

	rec := uploadAvatar(t, env, token, "me.PNG", png)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		AvatarURL string `json:"avatarUrl"`
	}
	decode(t, rec, &resp)
	assert.True(t, strings.HasPrefix(resp.AvatarURL, "/public/avatars/user_avatar_"+userID+"_"), resp.AvatarURL)
	assert.True(t, strings.HasSuffix(resp.AvatarURL, ".png"), resp.AvatarURL)

	served := env.do("GET", resp.AvatarURL, "", nil)
	require.Equal(t, http.StatusOK, served.Code)
	assert.Equal(t, png, served.Body.Bytes())

	var me struct {
		User UserResponse `json:"user"`
	}
	decode(t, env.do("GET", "/api/v1/users/me", token, nil), &me)
	require.NotNil(t, me.User.AvatarURL)
	assert.Equal(t, resp.AvatarURL, *me.User.AvatarURL)

	rec = uploadAvatar(t, env, token, "payload.exe", []byte("MZ"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Only the accepted upload is on disk.
	files, err := os.ReadDir(env.server.config.AvatarPath)
	require.NoError(t, err)
	names := []string{}
	for _, f := range files {
		if strings.HasPrefix(f.Name(), "user_avatar_") {
			names = append(names, f.Name())
		}
	}
	assert.Equal(t, []string{strings.TrimPrefix(resp.AvatarURL, "/public/avatars/")}, names)

	assert.Equal(t, http.StatusUnauthorized, uploadAvatar(t, env, "", "me.png", png).Code)
}

func TestEventOfDeletedClubIsHidden(t *testing.T) {
	env := newTestEnv(t, 60)
	ownerToken, _ := env.register("owner")
	memberToken, memberID := env.register("member")
	club := env.createClub(ownerToken, "Robotics", "technology")
	event := env.createEvent(ownerToken, club.ID, nil)

	require.Equal(t, http.StatusOK, env.do("PUT", "/api/v1/events/"+event.ID+"/rsvp", memberToken, envelope{"status": "going"}).Code)
	require.Equal(t, http.StatusOK, env.do("DELETE", "/api/v1/clubs/"+club.ID, ownerToken, nil).Code)

	assert.Equal(t, http.StatusNotFound, env.do("GET", "/api/v1/events/"+event.ID, memberToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do("GET", "/api/v1/events/"+event.ID+"/rsvps", memberToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do("PUT", "/api/v1/events/"+event.ID+"/rsvp", memberToken, envelope{"status": "not_going"}).Code)

	// The rejected change wrote nothing.
	rsvp, err := env.db.GetRSVP(context.Background(), env.db.DB(), event.ID, memberID)
	require.NoError(t, err)
	assert.Equal(t, database.RSVPGoing, rsvp.Status)
}

func TestRequestLogRedactsToken(t *testing.T) {
	var buf bytes.Buffer
	logger := newRequestLogger(log.New(&buf, "", 0))
	h := logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Handlers still see the real token.
		assert.Equal(t, "secret-jwt", r.URL.Query().Get("token"))
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest("GET", "/api/v1/notifications/stream?token=secret-jwt&x=1", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	assert.NotContains(t, out, "secret-jwt")
	assert.Contains(t, out, "token=REDACTED")
	assert.Contains(t, out, "x=1")
	assert.Equal(t, "/api/v1/notifications/stream?token=secret-jwt&x=1", req.URL.String())
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, 60)
	rec := env.do("GET", "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tabyslink_sse_clients")
}

func TestNotificationStream(t *testing.T) {
	env := newTestEnv(t, 60)
	ownerToken, _ := env.register("owner")
	memberToken, _ := env.register("member")
	club := env.createClub(ownerToken, "Robotics", "technology")

	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/v1/notifications/stream?token="+ownerToken, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return env.broker.Connected() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, http.StatusOK, env.do("POST", "/api/v1/clubs/"+club.ID+"/join", memberToken, nil).Code)

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "), line)

	var msg realtime.Message
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &msg))
	assert.Equal(t, realtime.TypeMemberJoined, msg.Type)

	// Delivered over the stream, so no email fallback.
	assert.Empty(t, env.mailer.sent)
}
