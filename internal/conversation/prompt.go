package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/turnos-ai/internal/actions"
	"github.com/wolfman30/turnos-ai/internal/appointments"
	"github.com/wolfman30/turnos-ai/internal/notify"
)

const receptionistPrompt = `Sos la recepcionista virtual de %s. Ayudás a los pacientes a sacar, consultar y cancelar turnos médicos por chat.
Respondé siempre en español, con mensajes breves y cordiales.

REGLAS PARA SACAR UN TURNO:
1. Necesitás cuatro datos: nombre completo, email, fecha y hora, y motivo de la consulta. Pedí lo que falte, de a un dato por vez.
2. Solo se pueden reservar fechas futuras.
3. Antes de reservar, repetí los datos y pedí confirmación explícita al paciente.
4. Únicamente cuando el paciente confirme, agregá al final de tu respuesta este bloque, exactamente con este formato:
[CREAR_TURNO]
NOMBRE: <nombre completo>
EMAIL: <email>
HORARIO: <AAAA-MM-DD HH:MM:SS>
DESCRIPCION: <motivo de la consulta>
[/CREAR_TURNO]

REGLAS PARA CANCELAR UN TURNO:
1. Confirmá cuál de los turnos activos quiere cancelar y pedí el motivo.
2. Cuando lo confirme, agregá al final de tu respuesta:
[CANCELAR_TURNO]
TURNO_ID: <id del turno>
MOTIVO: <motivo>
[/CANCELAR_TURNO]

IMPORTANTE:
- Nunca inventes turnos ni IDs. Usá solo los IDs de la lista de turnos activos.
- Emití como máximo un bloque por respuesta y nunca lo menciones al paciente.
- No des diagnósticos ni consejos médicos.`

// SystemPromptInput is the per-turn context rendered into the system prompt.
type SystemPromptInput struct {
	Clinic   string
	Now      time.Time
	Location *time.Location
	User     Principal
	Active   []*appointments.Appointment
}

// BuildSystemPrompt renders the fixed instructions followed by the dynamic context block.
func BuildSystemPrompt(in SystemPromptInput) string {
	clinic := strings.TrimSpace(in.Clinic)
	if clinic == "" {
		clinic = "el consultorio"
	}
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	now := in.Now.In(loc)

	var b strings.Builder
	fmt.Fprintf(&b, receptionistPrompt, clinic)
	b.WriteString("\n\nCONTEXTO:\n")
	fmt.Fprintf(&b, "- Hoy es %s (%s, zona horaria %s).\n", notify.HumanDate(now, loc), now.Format(actions.DateTimeLayout), loc.String())
	if in.User.Name != "" || in.User.Email != "" {
		fmt.Fprintf(&b, "- Paciente conectado: %s <%s>. Si no indica otro, usá estos datos para el turno.\n", in.User.Name, in.User.Email)
	}
	if len(in.Active) == 0 {
		b.WriteString("- El paciente no tiene turnos activos.\n")
		return b.String()
	}
	b.WriteString("- Turnos activos del paciente:\n")
	for _, a := range in.Active {
		fmt.Fprintf(&b, "  * ID %s: %s, %s (%s)\n",
			a.ID, a.ScheduledAt.In(loc).Format(actions.DateTimeLayout), a.Description, a.Status.Label())
	}
	return b.String()
}
