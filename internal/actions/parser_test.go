package actions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const createReply = "[CREAR_TURNO]\nNOMBRE: Ana Pérez\nEMAIL: ana@x.com\nHORARIO: 2030-01-01 10:00:00\nDESCRIPCION: control\n[/CREAR_TURNO]"

func TestParseBlock_CreateScenario(t *testing.T) {
	block, ok := ParseBlock(createReply)
	require.True(t, ok)
	assert.Equal(t, KindCreate, block.Kind)
	assert.Equal(t, map[string]string{
		"nombre":      "Ana Pérez",
		"email":       "ana@x.com",
		"horario":     "2030-01-01 10:00:00",
		"descripcion": "control",
	}, block.Fields)
}

func TestExtract_CreateAppointment(t *testing.T) {
	loc, err := time.LoadLocation("America/Argentina/Buenos_Aires")
	require.NoError(t, err)

	text := "¡Listo! Ya registré tu turno.\n\n" + createReply + "\n\nTe llegará un email."
	res := NewExtractor(loc).Extract(text)

	require.True(t, res.HasAction())
	create, ok := res.Action.(CreateAppointment)
	require.True(t, ok, "expected CreateAppointment, got %T", res.Action)
	assert.Equal(t, "Ana Pérez", create.Name)
	assert.Equal(t, "ana@x.com", create.Email)
	assert.Equal(t, "control", create.Description)
	assert.True(t, create.ScheduledAt.Equal(time.Date(2030, 1, 1, 10, 0, 0, 0, loc)))
	assert.Equal(t, map[string]string{
		"nombre":      "Ana Pérez",
		"email":       "ana@x.com",
		"horario":     "2030-01-01 10:00:00",
		"descripcion": "control",
	}, create.Fields())
	assert.Equal(t, "¡Listo! Ya registré tu turno.\n\nTe llegará un email.", res.Visible)
	assert.NotContains(t, res.Visible, "CREAR_TURNO")
}

func TestExtract_KeysAreCaseInsensitiveAndTrimmed(t *testing.T) {
	text := "[crear_turno]\n  nombre :   Juan  \n- Email:juan@x.com\n**Descripción**: dolor de cabeza \nhorario: 2031-05-02 09:30:00\n[/Crear_Turno]"
	res := NewExtractor(time.UTC).Extract(text)

	create, ok := res.Action.(CreateAppointment)
	require.True(t, ok, "expected CreateAppointment, got %T", res.Action)
	assert.Equal(t, "Juan", create.Name)
	assert.Equal(t, "juan@x.com", create.Email)
	assert.Equal(t, "dolor de cabeza", create.Description)
	assert.Equal(t, "", res.Visible)
}

func TestExtract_NoMarkerLeavesTextUnchanged(t *testing.T) {
	texts := []string{
		"Hola, ¿para qué día querés el turno?",
		"  espacios alrededor  ",
		"NOMBRE: Ana\nHORARIO: 2030-01-01 10:00:00",
		"[/CREAR_TURNO] cierre suelto",
	}
	for _, text := range texts {
		res := NewExtractor(time.UTC).Extract(text)
		assert.Equal(t, KindNone, res.Action.Kind())
		assert.False(t, res.HasAction())
		assert.Equal(t, text, res.Visible)
		assert.Nil(t, res.Block)
	}
}

func TestExtract_MissingRequiredFieldYieldsNoAction(t *testing.T) {
	text := "Perfecto.\n[CREAR_TURNO]\nNOMBRE: Ana\nHORARIO: 2030-01-01 10:00:00\n[/CREAR_TURNO]"
	res := NewExtractor(time.UTC).Extract(text)

	assert.Equal(t, KindNone, res.Action.Kind())
	assert.Equal(t, "Perfecto.", res.Visible)
	require.NotNil(t, res.Block)
	assert.Equal(t, KindCreate, res.Block.Kind)
}

func TestExtract_BadDateProfileYieldsNoAction(t *testing.T) {
	for _, horario := range []string{"01/01/2030 10:00", "2030-01-01T10:00:00Z", "2030-01-01 10:00", "mañana a las 10"} {
		text := "[CREAR_TURNO]\nNOMBRE: Ana\nHORARIO: " + horario + "\nDESCRIPCION: control\n[/CREAR_TURNO]"
		res := NewExtractor(time.UTC).Extract(text)
		assert.Equal(t, KindNone, res.Action.Kind(), "horario %q", horario)
	}
}

func TestExtract_EmailIsOptional(t *testing.T) {
	text := "[CREAR_TURNO]\nNOMBRE: Ana\nHORARIO: 2030-01-01 10:00:00\nDESCRIPCION: control\n[/CREAR_TURNO]"
	res := NewExtractor(time.UTC).Extract(text)
	create, ok := res.Action.(CreateAppointment)
	require.True(t, ok)
	assert.Empty(t, create.Email)
}

func TestExtract_MalformedLinesAreSkipped(t *testing.T) {
	text := "[CANCELAR_TURNO]\nesto no es un par\n: sin clave\nTURNO_ID: 42\n123: numérico\nMOTIVO: paciente no puede asistir\n[/CANCELAR_TURNO]"
	res := NewExtractor(time.UTC).Extract(text)

	cancel, ok := res.Action.(CancelAppointment)
	require.True(t, ok, "expected CancelAppointment, got %T", res.Action)
	assert.Equal(t, "42", cancel.AppointmentID)
	assert.Equal(t, "paciente no puede asistir", cancel.Reason)
	assert.Len(t, res.Block.Fields, 2)
}

func TestExtract_CancelAliasAndMissingReason(t *testing.T) {
	res := NewExtractor(time.UTC).Extract("[CANCELAR_TURNO]\nID: abc\nMOTIVO: viaje\n[/CANCELAR_TURNO]")
	cancel, ok := res.Action.(CancelAppointment)
	require.True(t, ok)
	assert.Equal(t, "abc", cancel.AppointmentID)

	res = NewExtractor(time.UTC).Extract("[CANCELAR_TURNO]\nTURNO_ID: abc\n[/CANCELAR_TURNO]")
	assert.Equal(t, KindNone, res.Action.Kind())
}

func TestExtract_FirstBlockWins(t *testing.T) {
	text := "[CANCELAR_TURNO]\nTURNO_ID: 1\nMOTIVO: x\n[/CANCELAR_TURNO]\n" + createReply
	res := NewExtractor(time.UTC).Extract(text)
	assert.Equal(t, KindCancel, res.Action.Kind())
	assert.Equal(t, "", res.Visible)
}

func TestExtract_UnclosedMarkerBeforeCompleteBlock(t *testing.T) {
	text := "Hecho.\n[CANCELAR_TURNO] pendiente\n" + createReply
	res := NewExtractor(time.UTC).Extract(text)
	assert.Equal(t, KindCreate, res.Action.Kind())
	assert.Equal(t, "Hecho.", res.Visible)
}

func TestExtract_TruncatedBlockIsHidden(t *testing.T) {
	text := "Perfecto, ya te reservo.\n[CREAR_TURNO]\nNOMBRE: Ana Pérez\nEMAIL: ana@x.com\nHORARIO: 2030-01-01 10:00:00"
	res := NewExtractor(time.UTC).Extract(text)

	assert.Equal(t, KindNone, res.Action.Kind())
	assert.Nil(t, res.Block)
	assert.Equal(t, "Perfecto, ya te reservo.", res.Visible)
	assert.NotContains(t, res.Visible, "NOMBRE")
}

func TestExtract_TruncatedBlockOnlyLeavesNothingVisible(t *testing.T) {
	res := NewExtractor(time.UTC).Extract("[cancelar_turno]\nTURNO_ID: 42\nMOTIVO: via")
	assert.Equal(t, KindNone, res.Action.Kind())
	assert.Empty(t, res.Visible)
}

func TestStripBlocks_DropsCompleteAndDanglingBlocks(t *testing.T) {
	text := "Uno.\n" + createReply + "\n\n\n\nDos.\n[CANCELAR_TURNO]\nTURNO_ID: 7"
	assert.Equal(t, "Uno.\n\nDos.", StripBlocks(text))
}

func TestNormalizeKey(t *testing.T) {
	cases := map[string]string{
		"Descripción":  "DESCRIPCION",
		" turno id ":   "TURNO_ID",
		"**NOMBRE**":   "NOMBRE",
		"fecha y hora": "FECHA_Y_HORA",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeKey(in), "input %q", in)
	}
}
