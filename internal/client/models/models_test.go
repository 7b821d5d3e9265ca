package models

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_Validate(t *testing.T) {
	tests := []struct {
		name    string
		ctx     Context
		wantErr bool
	}{
		{"article field ok", ArticleField("a1", "cover"), false},
		{"article field missing field", ArticleField("a1", ""), true},
		{"article field missing id", ArticleField("", "cover"), true},
		{"auto attach ok", AutoAttach("a1"), false},
		{"auto attach missing id", AutoAttach(""), true},
		{"profile picture ok", ProfilePicture("u1"), false},
		{"profile picture missing id", ProfilePicture(""), true},
		{"generic ok", GenericAttachment(), false},
		{"unknown kind", Context{Kind: "cover-image"}, true},
		{"zero value", Context{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ctx.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidContext)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParseContext(t *testing.T) {
	c, err := ParseContext("article-field", "a1", "cover")
	require.NoError(t, err)
	assert.Equal(t, ArticleField("a1", "cover"), c)

	c, err = ParseContext("generic-attachment")
	require.NoError(t, err)
	assert.Equal(t, KindGenericAttachment, c.Kind)

	_, err = ParseContext("auto-attach")
	require.ErrorIs(t, err, ErrInvalidContext)

	_, err = ParseContext("nope")
	require.ErrorIs(t, err, ErrInvalidContext)
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"report.pdf", "report.pdf"},
		{"My Report (final).pdf", "My_Report_final_.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\photo 1.jpg`, "photo_1.jpg"},
		{"привет.txt", "txt"},
		{"", "file"},
		{"???", "file"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFileName(tt.in), "input %q", tt.in)
	}

	long := strings.Repeat("a", 150) + ".png"
	got := SanitizeFileName(long)
	assert.Len(t, got, maxStoredNameLen)
	assert.True(t, strings.HasSuffix(got, ".png"))
}

func TestStoredNameAndRemotePath(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	name := StoredName("cover image.png", at, "deadbeef")
	assert.Equal(t, "1700000000123_deadbeef_cover_image.png", name)

	assert.Equal(t, "articles/u1/a9/"+name, RemotePath("/articles/", "u1", "a9", name))
	assert.Equal(t, "avatars/u1/"+name, RemotePath("avatars", "u1", "", name))
}

func TestCheckSegment(t *testing.T) {
	for _, v := range []string{"u1", "user-42", "a.b", "..x"} {
		assert.NoError(t, CheckSegment(v), v)
	}
	for _, v := range []string{"", ".", "..", "../..", "a/b", `a\b`} {
		assert.ErrorIs(t, CheckSegment(v), ErrInvalidSegment, v)
	}
}

func TestState_Predicates(t *testing.T) {
	for _, s := range []State{StateSucceeded, StateFailed, StateCanceled} {
		assert.True(t, s.IsTerminal(), s)
		assert.False(t, s.IsActive(), s)
	}
	for _, s := range []State{StateQueued, StateRunning, StatePaused} {
		assert.False(t, s.IsTerminal(), s)
	}
	assert.True(t, StateRunning.IsActive())
	assert.True(t, StatePaused.IsActive())
	assert.False(t, StateQueued.IsActive())
}

func TestUploadTask_Validate(t *testing.T) {
	task := UploadTask{TotalBytes: 10, BytesTransferred: 10, State: StateRunning}
	require.NoError(t, task.Validate())

	task.BytesTransferred = 11
	require.ErrorIs(t, task.Validate(), ErrByteRange)

	task.BytesTransferred = -1
	require.ErrorIs(t, task.Validate(), ErrByteRange)

	task = UploadTask{TotalBytes: 10, State: StateQueued, LastError: "boom"}
	require.Error(t, task.Validate())
	task.State = StateFailed
	require.NoError(t, task.Validate())
}

func TestPayload_OpenAndReadAll(t *testing.T) {
	p := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(p, []byte("abc"), 0o600))

	pl := Payload{Path: p, Name: "data.bin", Size: 3}
	f, err := pl.Open()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	b, err := pl.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), b)

	_, err = Payload{Name: "x"}.Open()
	require.Error(t, err)
	_, err = Payload{Path: filepath.Join(t.TempDir(), "missing")}.ReadAll()
	require.Error(t, err)
}
