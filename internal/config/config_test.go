package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retentionline/internal/domain"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault("unit-sp")))
	require.NoError(t, err)
	assert.Equal(t, "unit-sp", cfg.Unit.ID)
	assert.Equal(t, 60, cfg.Calendar.DefaultDurationMinutes)
	assert.Empty(t, cfg.Members(domain.DepartmentAdministrative))

	def := Default("unit-rj")
	assert.Equal(t, "unit-rj", def.Unit.ID)
	require.NoError(t, def.Validate())
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := map[string]string{
		"missing unit": `unit: {}`,
		"unknown department": `
unit: {id: u1}
departments:
  marketing:
    members: [{id: s1}]`,
		"class without teacher": `
unit: {id: u1}
roster:
  classes:
    c1: {teacher_name: Ana}`,
		"relative webhook": `
unit: {id: u1}
webhooks:
  - url: /hooks`,
		"calendar without url": `
unit: {id: u1}
calendar: {enabled: true}`,
		"bad log format": `
unit: {id: u1}
logging: {format: xml}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	_, err = Load(dir)
	require.Error(t, err)

	doc := `
unit: {id: u1, name: Centro}
departments:
  administrative:
    members:
      - {id: s1, name: Bia, handle: "@bia"}
roster:
  classes:
    c1: {teacher_id: t1, teacher_name: Ana, messaging_handle: "@ana"}
webhooks:
  - url: https://hooks.example.com/x
    events: [activity.created]
    enabled: false
`
	require.NoError(t, os.WriteFile(Path(dir), []byte(doc), 0o644))
	cfg, err = LoadOptional(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "Centro", cfg.Unit.Name)
	assert.Equal(t, []Member{{ID: "s1", Name: "Bia", Handle: "@bia"}}, cfg.Members(domain.DepartmentAdministrative))
	assert.Equal(t, "t1", cfg.Roster.Classes["c1"].TeacherID)
	assert.False(t, cfg.Webhooks[0].Active())

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	require.NoError(t, os.WriteFile(Path(dir), []byte("unit: [broken"), 0o644))
	_, err = LoadOptional(dir)
	require.ErrorContains(t, err, "invalid config yaml")
}
