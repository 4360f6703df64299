package backup_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jaydenbeard/e2ecore/internal/backup"
)

func TestPassphraseCellSetGetClear(t *testing.T) {
	cell := backup.NewPassphraseCell()

	_, ok := cell.Get()
	assert.False(t, ok)

	cell.Set("correct-horse-battery-staple")
	got, ok := cell.Get()
	assert.True(t, ok)
	assert.Equal(t, "correct-horse-battery-staple", got)

	cell.Clear()
	_, ok = cell.Get()
	assert.False(t, ok)
}

func TestPassphraseCellSetOverwritesPreviousValue(t *testing.T) {
	cell := backup.NewPassphraseCell()
	cell.Set("first")
	cell.Set("second")
	got, ok := cell.Get()
	assert.True(t, ok)
	assert.Equal(t, "second", got)
}
