package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader("correct horse\n"))
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"hash-password"})
	require.NoError(t, rootCmd.Execute())

	hash := strings.TrimSpace(out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("correct horse")))
}

func TestHashPassword_TooShort(t *testing.T) {
	rootCmd.SetIn(strings.NewReader("short"))
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"hash-password"})
	assert.Error(t, rootCmd.Execute())
}

func TestHashPassword_EmptyStdin(t *testing.T) {
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"hash-password"})
	assert.Error(t, rootCmd.Execute())
}
