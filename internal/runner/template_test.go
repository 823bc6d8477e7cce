package runner

import (
	"testing"

	v1 "github.com/catactl/catactl/apis/v1"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandTemplates_String(t *testing.T) {
	type S struct {
		Path string `template:""`
	}
	in := S{Path: "${HOME_DIR}/game"}
	err := ExpandTemplates(&in, map[string]string{"HOME_DIR": "/home/player"})
	require.NoError(t, err)
	assert.Equal(t, S{Path: "/home/player/game"}, in)
}

func TestExpandTemplates_PtrString(t *testing.T) {
	type S struct {
		Prefix *string `template:""`
	}
	original := "${HOST}/saves"
	in := S{Prefix: &original}
	err := ExpandTemplates(&in, map[string]string{"HOST": "box-1"})
	require.NoError(t, err)
	require.NotNil(t, in.Prefix)
	assert.Equal(t, "box-1/saves", *in.Prefix)
	assert.Equal(t, "${HOST}/saves", original)
}

func TestExpandTemplates_PtrStringNil(t *testing.T) {
	type S struct {
		Prefix *string `template:""`
	}
	in := S{}
	require.NoError(t, ExpandTemplates(&in, map[string]string{}))
	assert.Nil(t, in.Prefix)
}

func TestExpandTemplates_NestedStructWithoutTagExplored(t *testing.T) {
	type Inner struct {
		Path string `template:""`
	}
	type Outer struct {
		Inner    Inner
		InnerPtr *Inner
		Nil      *Inner
	}
	in := Outer{Inner: Inner{Path: "${X}"}, InnerPtr: &Inner{Path: "${X}/ptr"}}
	err := ExpandTemplates(&in, map[string]string{"X": "expanded"})
	require.NoError(t, err)
	assert.Equal(t, "expanded", in.Inner.Path)
	assert.Equal(t, "expanded/ptr", in.InnerPtr.Path)
	assert.Nil(t, in.Nil)
}

func TestExpandTemplates_StringWithoutTagNotExpanded(t *testing.T) {
	type S struct {
		Path    string
		Skipped string `template:"-"`
	}
	in := S{Path: "${X}", Skipped: "${X}"}
	require.NoError(t, ExpandTemplates(&in, map[string]string{"X": "y"}))
	assert.Equal(t, S{Path: "${X}", Skipped: "${X}"}, in)
}

func TestExpandTemplates_NonStringFieldsUntouched(t *testing.T) {
	type S struct {
		Path    string `template:""`
		Workers int
		Enabled bool
	}
	in := S{Path: "${X}", Workers: 4, Enabled: true}
	require.NoError(t, ExpandTemplates(&in, map[string]string{"X": "y"}))
	assert.Equal(t, S{Path: "y", Workers: 4, Enabled: true}, in)
}

func TestExpandTemplates_TopLevelNil(t *testing.T) {
	type S struct {
		Path string `template:""`
	}
	var in *S
	require.NoError(t, ExpandTemplates(in, map[string]string{}))
	assert.Nil(t, in)
}

func TestExpandTemplates_NotAStruct(t *testing.T) {
	in := "${X}"
	err := ExpandTemplates(&in, map[string]string{"X": "y"})
	require.Error(t, err)
}

func TestExpandTemplates_ReportsEveryMissingVariable(t *testing.T) {
	type S struct {
		First  string `template:""`
		Second string `template:""`
	}
	in := S{First: "${MISSING1}", Second: "${MISSING2}"}
	err := ExpandTemplates(&in, map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "First")
	assert.Contains(t, err.Error(), "MISSING1")
	assert.Contains(t, err.Error(), "Second")
	assert.Contains(t, err.Error(), "MISSING2")
}

func TestExpandTemplates_Config(t *testing.T) {
	cfg := v1.Config{
		AppRoot: "${APP_HOME}",
		Install: "${INSTALL}",
		Backup:  &v1.BackupSpec{Suffix: "${NOT_EXPANDED}"},
		Mirror: &v1.MirrorSpec{
			Folder: &v1.FolderSpec{Path: "${MIRROR}/folder"},
			S3: &v1.S3Spec{
				Bucket: "${BUCKET}",
				Prefix: lo.ToPtr("saves/${CATACTL_DATE}"),
				Credentials: &v1.S3Credentials{
					AccessKeyID:     "${AWS_ACCESS_KEY_ID}",
					SecretAccessKey: "${AWS_SECRET_ACCESS_KEY}",
				},
			},
		},
	}
	variables := map[string]string{
		"APP_HOME":              "/srv/cata",
		"INSTALL":               "stable",
		"MIRROR":                "/mnt/nas",
		"BUCKET":                "cata-saves",
		"CATACTL_DATE":          "2024-03-09",
		"AWS_ACCESS_KEY_ID":     "AKIA",
		"AWS_SECRET_ACCESS_KEY": "secret",
		"NOT_EXPANDED":          "bak",
	}

	require.NoError(t, ExpandTemplates(&cfg, variables))

	assert.Equal(t, "/srv/cata", cfg.AppRoot)
	assert.Equal(t, "stable", cfg.Install)
	assert.Equal(t, "${NOT_EXPANDED}", cfg.Backup.Suffix)
	assert.Equal(t, "/mnt/nas/folder", cfg.Mirror.Folder.Path)
	assert.Equal(t, "cata-saves", cfg.Mirror.S3.Bucket)
	assert.Equal(t, "saves/2024-03-09", *cfg.Mirror.S3.Prefix)
	assert.Equal(t, "AKIA", cfg.Mirror.S3.Credentials.AccessKeyID)
	assert.Equal(t, "secret", cfg.Mirror.S3.Credentials.SecretAccessKey)
}

func TestExpand(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		variables  map[string]string
		want       string
		wantErr    bool
		errContain string
	}{
		{
			name:      "no variables",
			value:     "plain-text",
			variables: map[string]string{},
			want:      "plain-text",
		},
		{
			name:      "single variable",
			value:     "${INSTALL}",
			variables: map[string]string{"INSTALL": "experimental"},
			want:      "experimental",
		},
		{
			name:  "multiple variables",
			value: "${INSTALL}-${CATACTL_DATE}",
			variables: map[string]string{
				"INSTALL":      "stable",
				"CATACTL_DATE": "2024-03-09",
			},
			want: "stable-2024-03-09",
		},
		{
			name:       "disallowed env var",
			value:      "${SECRET_KEY}",
			variables:  map[string]string{},
			wantErr:    true,
			errContain: `environment variable "SECRET_KEY" is not in the allowed list`,
		},
		{
			name:      "multiple errors accumulated",
			value:     "${NOT_ALLOWED}${ALSO_NOT_ALLOWED}",
			variables: map[string]string{},
			wantErr:   true,
		},
		{
			name:      "dollar sign without braces uses short form",
			value:     "$PLAIN",
			variables: map[string]string{"PLAIN": "value"},
			want:      "value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.value, tt.variables)

			if tt.wantErr {
				require.Error(t, err)
				if tt.errContain != "" {
					assert.Contains(t, err.Error(), tt.errContain)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
