package access_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bastion/access"
)

func TestLevelOrder(t *testing.T) {
	assert.True(t, access.None < access.Deposit)
	assert.True(t, access.Deposit < access.Full)

	assert.True(t, access.Full.Satisfies(access.Deposit))
	assert.True(t, access.Deposit.Satisfies(access.Deposit))
	assert.False(t, access.Deposit.Satisfies(access.Full))
	assert.False(t, access.None.Satisfies(access.Deposit))
}

func TestParseLevel(t *testing.T) {
	cases := map[string]access.Level{
		"none":         access.None,
		"":             access.None,
		"Deposit":      access.Deposit,
		"deposit-only": access.Deposit,
		" FULL ":       access.Full,
	}
	for in, want := range cases {
		got, err := access.ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := access.ParseLevel("owner")
	assert.Error(t, err)
}

func TestLevelJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		L access.Level `json:"l"`
	}{access.Deposit})
	require.NoError(t, err)
	assert.JSONEq(t, `{"l":"deposit"}`, string(b))

	var out struct {
		L access.Level `json:"l"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"l":"full"}`), &out))
	assert.Equal(t, access.Full, out.L)

	assert.Error(t, json.Unmarshal([]byte(`{"l":"bogus"}`), &out))
	assert.Equal(t, "level(7)", access.Level(7).String())
	assert.False(t, access.Level(7).Valid())
}

func TestActionRequired(t *testing.T) {
	assert.Equal(t, access.Deposit, access.ActionDeposit.Required())
	assert.Equal(t, access.Full, access.ActionWithdraw.Required())
	assert.Equal(t, access.Full, access.ActionManage.Required())
	assert.Equal(t, access.Full, access.Action("teleport").Required())
}

func TestPrincipalInGroup(t *testing.T) {
	p := access.Principal{Name: "Alice", Groups: []string{"Mods", "builders"}}
	assert.True(t, p.InGroup("mods"))
	assert.True(t, p.InGroup("BUILDERS"))
	assert.False(t, p.InGroup("admins"))
}
