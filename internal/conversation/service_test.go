package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/turnos-ai/internal/actions"
	"github.com/wolfman30/turnos-ai/internal/appointments"
	"github.com/wolfman30/turnos-ai/pkg/logging"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

var ana = Principal{Email: "ana@x.com", Name: "Ana Pérez"}

type stubLLMClient struct {
	mu        sync.Mutex
	responses []LLMResponse
	errs      []error
	requests  []LLMRequest
	calls     int
}

func (s *stubLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return LLMResponse{}, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return LLMResponse{}, errors.New("no scripted response")
}

type countingNotifier struct {
	created   int
	cancelled int
}

func (n *countingNotifier) SendCreated(ctx context.Context, appt appointments.Appointment) bool {
	n.created++
	return true
}

func (n *countingNotifier) SendCancelled(ctx context.Context, appt appointments.Appointment) bool {
	n.cancelled++
	return true
}

type chatHarness struct {
	svc      *Service
	llm      *stubLLMClient
	turns    *InMemoryTurnStore
	repo     *appointments.InMemoryRepository
	booking  *appointments.Service
	notifier *countingNotifier
}

func newChatHarness(t *testing.T, llm *stubLLMClient) *chatHarness {
	t.Helper()
	repo := appointments.NewInMemoryRepository()
	notifier := &countingNotifier{}
	booking := appointments.NewService(repo, logging.Default(),
		appointments.WithNotifier(notifier),
		appointments.WithClock(func() time.Time { return fixedNow }),
	)
	turns := NewInMemoryTurnStore()
	svc := NewService(llm, turns, booking, Config{Clinic: "Consultorio Norte", Location: time.UTC}, logging.Default(),
		WithClock(func() time.Time { return fixedNow }))
	return &chatHarness{svc: svc, llm: llm, turns: turns, repo: repo, booking: booking, notifier: notifier}
}

func TestHandleTurn_PlainReplyIsStored(t *testing.T) {
	h := newChatHarness(t, &stubLLMClient{responses: []LLMResponse{{Text: "Hola Ana, ¿para qué día querés el turno?"}}})

	reply, err := h.svc.HandleTurn(context.Background(), "s1", ana, "  Hola, quiero un turno  ")
	require.NoError(t, err)
	assert.Equal(t, "Hola Ana, ¿para qué día querés el turno?", reply.Text)
	assert.Empty(t, reply.AppointmentID)
	assert.Empty(t, reply.Action)

	turns, err := h.svc.History(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, ChatRoleUser, turns[0].Role)
	assert.Equal(t, "Hola, quiero un turno", turns[0].Message)
	assert.Equal(t, ChatRoleAssistant, turns[1].Role)

	require.Len(t, h.llm.requests, 1)
	req := h.llm.requests[0]
	require.Len(t, req.System, 1)
	assert.Contains(t, req.System[0], "Consultorio Norte")
	assert.Contains(t, req.System[0], "ana@x.com")
	assert.Contains(t, req.System[0], "[CREAR_TURNO]")
	assert.Contains(t, req.System[0], "2026-03-10")
	assert.Equal(t, []ChatMessage{{Role: ChatRoleUser, Content: "Hola, quiero un turno"}}, req.Messages)
}

func TestHandleTurn_HistoryIsReplayed(t *testing.T) {
	h := newChatHarness(t, &stubLLMClient{responses: []LLMResponse{{Text: "¿Qué día?"}, {Text: "Perfecto."}}})
	ctx := context.Background()

	_, err := h.svc.HandleTurn(ctx, "s1", ana, "Quiero un turno")
	require.NoError(t, err)
	_, err = h.svc.HandleTurn(ctx, "s1", ana, "El lunes")
	require.NoError(t, err)

	require.Len(t, h.llm.requests, 2)
	assert.Equal(t, []ChatMessage{
		{Role: ChatRoleUser, Content: "Quiero un turno"},
		{Role: ChatRoleAssistant, Content: "¿Qué día?"},
		{Role: ChatRoleUser, Content: "El lunes"},
	}, h.llm.requests[1].Messages)
}

func TestHandleTurn_LongSessionWindowStartsOnUser(t *testing.T) {
	const exchanges = 25
	llm := &stubLLMClient{}
	for i := 0; i < exchanges; i++ {
		llm.responses = append(llm.responses, LLMResponse{Text: fmt.Sprintf("respuesta %d", i)})
	}
	h := newChatHarness(t, llm)
	ctx := context.Background()

	for i := 0; i < exchanges; i++ {
		_, err := h.svc.HandleTurn(ctx, "s1", ana, fmt.Sprintf("mensaje %d", i))
		require.NoError(t, err)
	}

	require.Len(t, llm.requests, exchanges)
	for i, req := range llm.requests {
		require.NotEmpty(t, req.Messages, "request %d", i)
		assert.Equal(t, ChatRoleUser, req.Messages[0].Role, "request %d", i)
		assert.Equal(t, ChatRoleUser, req.Messages[len(req.Messages)-1].Role, "request %d", i)
		for j := 1; j < len(req.Messages); j++ {
			assert.NotEqual(t, req.Messages[j-1].Role, req.Messages[j].Role, "request %d message %d", i, j)
		}
	}
	last := llm.requests[exchanges-1].Messages
	assert.Len(t, last, 39)
	assert.Equal(t, "mensaje 5", last[0].Content)
	assert.Equal(t, "mensaje 24", last[len(last)-1].Content)
}

func TestHistoryMessages_DropsLeadingAssistantAndMergesRepeats(t *testing.T) {
	turns := []Turn{
		{Role: ChatRoleAssistant, Message: "cola de la ventana"},
		{Role: ChatRoleUser, Message: "hola"},
		{Role: ChatRoleUser, Message: "¿hay turnos?"},
		{Role: ChatRoleAssistant, Message: "Sí."},
		{Role: ChatRoleAssistant, Message: "¿Qué día?"},
		{Role: ChatRoleUser, Message: "El lunes"},
	}

	assert.Equal(t, []ChatMessage{
		{Role: ChatRoleUser, Content: "hola\n\n¿hay turnos?"},
		{Role: ChatRoleAssistant, Content: "Sí.\n\n¿Qué día?"},
		{Role: ChatRoleUser, Content: "El lunes"},
	}, historyMessages(turns))
	assert.Empty(t, historyMessages([]Turn{{Role: ChatRoleAssistant, Message: "solo"}}))
}

func TestHandleTurn_TruncatedBlockIsNotShown(t *testing.T) {
	text := "Perfecto, ya te reservo.\n[CREAR_TURNO]\nNOMBRE: Ana Pérez\nHORARIO: 2030-01-01 10:00:00"
	h := newChatHarness(t, &stubLLMClient{responses: []LLMResponse{{Text: text}}})

	reply, err := h.svc.HandleTurn(context.Background(), "s1", ana, "Sí")
	require.NoError(t, err)
	assert.Equal(t, "Perfecto, ya te reservo.", reply.Text)
	assert.Empty(t, reply.Action)

	turns, err := h.svc.History(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.NotContains(t, turns[1].Message, "CREAR_TURNO")
}

func TestHandleTurn_CreatesAppointmentFromBlock(t *testing.T) {
	text := "¡Listo, Ana!\n[CREAR_TURNO]\nNOMBRE: Ana Pérez\nHORARIO: 2030-01-01 10:00:00\nDESCRIPCION: control\n[/CREAR_TURNO]"
	h := newChatHarness(t, &stubLLMClient{responses: []LLMResponse{{Text: text}}})

	reply, err := h.svc.HandleTurn(context.Background(), "s1", ana, "Sí, confirmo")
	require.NoError(t, err)
	assert.Equal(t, actions.KindCreate, reply.Action)
	assert.Equal(t, appointments.OutcomeCreated, reply.Outcome)
	require.NotEmpty(t, reply.AppointmentID)
	assert.True(t, strings.HasPrefix(reply.Text, "¡Listo, Ana!"))
	assert.Contains(t, reply.Text, "martes 1 de enero de 2030, 10:00 hs")
	assert.NotContains(t, reply.Text, "CREAR_TURNO")

	appt, err := h.repo.GetByID(context.Background(), reply.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, "ana@x.com", appt.Email, "email falls back to the logged-in user")
	assert.Equal(t, appointments.StatusPending, appt.Status)
	assert.Equal(t, 1, h.notifier.created)

	turns, _ := h.turns.List(context.Background(), "s1", 0)
	require.Len(t, turns, 2)
	assert.Equal(t, reply.AppointmentID, turns[1].AppointmentID)
	assert.Equal(t, reply.Text, turns[1].Message)
}

func TestHandleTurn_PastDateIsReportedNotBooked(t *testing.T) {
	text := "[CREAR_TURNO]\nNOMBRE: Ana\nEMAIL: ana@x.com\nHORARIO: 2020-01-01 10:00:00\nDESCRIPCION: control\n[/CREAR_TURNO]"
	h := newChatHarness(t, &stubLLMClient{responses: []LLMResponse{{Text: text}}})

	reply, err := h.svc.HandleTurn(context.Background(), "s1", ana, "Confirmo")
	require.NoError(t, err)
	assert.Empty(t, reply.AppointmentID)
	assert.Contains(t, reply.Text, "No pude registrar el turno")

	list, _ := h.repo.ListByEmail(context.Background(), "ana@x.com")
	assert.Empty(t, list)
	assert.Zero(t, h.notifier.created)
}

func TestHandleTurn_IncompleteBlockIsStrippedAndIgnored(t *testing.T) {
	text := "Anotado.\n[CREAR_TURNO]\nNOMBRE: Ana\n[/CREAR_TURNO]"
	h := newChatHarness(t, &stubLLMClient{responses: []LLMResponse{{Text: text}}})

	reply, err := h.svc.HandleTurn(context.Background(), "s1", ana, "ok")
	require.NoError(t, err)
	assert.Equal(t, "Anotado.", reply.Text)
	assert.Empty(t, reply.Action)
	list, _ := h.repo.ListByEmail(context.Background(), "ana@x.com")
	assert.Empty(t, list)
}

func TestHandleTurn_CancelOwnAppointment(t *testing.T) {
	h := newChatHarness(t, &stubLLMClient{})
	ctx := context.Background()
	created, err := h.booking.Create(ctx, appointments.CreateRequest{
		Name: "Ana", Email: "ana@x.com", ScheduledAt: fixedNow.Add(48 * time.Hour), Description: "control",
	})
	require.NoError(t, err)

	h.llm.responses = []LLMResponse{{
		Text: "Listo.\n[CANCELAR_TURNO]\nTURNO_ID: " + created.Appointment.ID + "\nMOTIVO: viaje\n[/CANCELAR_TURNO]",
	}}
	reply, err := h.svc.HandleTurn(ctx, "s1", ana, "Cancelalo, me voy de viaje")
	require.NoError(t, err)
	assert.Equal(t, actions.KindCancel, reply.Action)
	assert.Equal(t, appointments.OutcomeCancelled, reply.Outcome)
	assert.Contains(t, reply.Text, "fue cancelado")

	appt, _ := h.repo.GetByID(ctx, created.Appointment.ID)
	assert.Equal(t, appointments.StatusCancelled, appt.Status)
	assert.Equal(t, "viaje", appt.CancelReason)
	assert.Equal(t, 1, h.notifier.cancelled)

	// The active turno was in the prompt the model saw.
	require.Len(t, h.llm.requests, 1)
	assert.Contains(t, h.llm.requests[0].System[0], "ID "+created.Appointment.ID)
}

func TestHandleTurn_CannotCancelSomeoneElsesAppointment(t *testing.T) {
	h := newChatHarness(t, &stubLLMClient{})
	ctx := context.Background()
	created, err := h.booking.Create(ctx, appointments.CreateRequest{
		Name: "Juan", Email: "juan@x.com", ScheduledAt: fixedNow.Add(48 * time.Hour), Description: "control",
	})
	require.NoError(t, err)

	h.llm.responses = []LLMResponse{{
		Text: "[CANCELAR_TURNO]\nTURNO_ID: " + created.Appointment.ID + "\nMOTIVO: no puedo\n[/CANCELAR_TURNO]",
	}}
	reply, err := h.svc.HandleTurn(ctx, "s1", ana, "cancelá ese turno")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "no pertenece a tu cuenta")
	assert.Empty(t, reply.Outcome)

	appt, _ := h.repo.GetByID(ctx, created.Appointment.ID)
	assert.Equal(t, appointments.StatusPending, appt.Status)
}

func TestHandleTurn_UnknownAppointmentID(t *testing.T) {
	h := newChatHarness(t, &stubLLMClient{responses: []LLMResponse{{
		Text: "[CANCELAR_TURNO]\nTURNO_ID: nope\nMOTIVO: no puedo\n[/CANCELAR_TURNO]",
	}}})
	reply, err := h.svc.HandleTurn(context.Background(), "s1", ana, "cancelá")
	require.NoError(t, err)
	assert.Equal(t, "No encontré un turno con ese identificador.", reply.Text)
}

func TestHandleTurn_LLMFailureReturnsApology(t *testing.T) {
	h := newChatHarness(t, &stubLLMClient{errs: []error{errors.New("quota exceeded")}})

	reply, err := h.svc.HandleTurn(context.Background(), "s1", ana, "hola")
	require.NoError(t, err)
	assert.Equal(t, ApologyMessage, reply.Text)

	turns, _ := h.turns.List(context.Background(), "s1", 0)
	require.Len(t, turns, 2)
	assert.Equal(t, ApologyMessage, turns[1].Message)
}

func TestHandleTurn_EmptyMessage(t *testing.T) {
	h := newChatHarness(t, &stubLLMClient{})

	_, err := h.svc.HandleTurn(context.Background(), "s1", ana, "   ")
	require.ErrorIs(t, err, ErrEmptyMessage)
	turns, _ := h.turns.List(context.Background(), "s1", 0)
	assert.Empty(t, turns)
	assert.Zero(t, h.llm.calls)
}

type slowLLM struct {
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (s *slowLLM) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		prev := s.maxSeen.Load()
		if n <= prev || s.maxSeen.CompareAndSwap(prev, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return LLMResponse{Text: "ok"}, nil
}

func TestHandleTurn_SameSessionIsSerialized(t *testing.T) {
	llm := &slowLLM{}
	turns := NewInMemoryTurnStore()
	booking := appointments.NewService(appointments.NewInMemoryRepository(), logging.Default())
	svc := NewService(llm, turns, booking, Config{}, logging.Default())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.HandleTurn(context.Background(), "same", ana, "hola")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), llm.maxSeen.Load())
	assert.Zero(t, svc.sessions.len())
	stored, _ := turns.List(context.Background(), "same", 0)
	require.Len(t, stored, 16)
	for i := 0; i < len(stored); i += 2 {
		assert.Equal(t, ChatRoleUser, stored[i].Role)
		assert.Equal(t, ChatRoleAssistant, stored[i+1].Role)
	}
}
