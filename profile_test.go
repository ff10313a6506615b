package main

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUser(t *testing.T) {
	app, store := newTestApp(t)
	u := store.addUser("Alice Smith")

	got, err := app.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", got.FullName)

	_, err = app.GetUser(context.Background(), uuid.New())
	assert.Equal(t, KindNotFound, kindOf(err))
}

func TestUpdateProfile(t *testing.T) {
	app, store := newTestApp(t)
	ctx := context.Background()
	u := store.addUser("Alice Smith")

	got, err := app.UpdateProfile(ctx, u.ID, ProfileUpdate{
		FullName:  strPtr("  Alice S.  "),
		Age:       intPtr(24),
		Location:  strPtr("Ibadan"),
		BudgetLow: intPtr(200),
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice S.", got.FullName)
	assert.Equal(t, 24, *got.Age)
	assert.Equal(t, "Ibadan", *got.Location)
	assert.Nil(t, got.Bio, "unset fields stay unchanged")

	t.Run("budget high below stored low", func(t *testing.T) {
		_, err := app.UpdateProfile(ctx, u.ID, ProfileUpdate{BudgetHigh: intPtr(150)})
		assert.Equal(t, KindValidation, kindOf(err))
	})

	t.Run("budget range in one patch", func(t *testing.T) {
		got, err := app.UpdateProfile(ctx, u.ID, ProfileUpdate{BudgetLow: intPtr(100), BudgetHigh: intPtr(150)})
		require.NoError(t, err)
		assert.Equal(t, 100, *got.BudgetLow)
		assert.Equal(t, 150, *got.BudgetHigh)
	})

	t.Run("rejections", func(t *testing.T) {
		cases := map[string]ProfileUpdate{
			"empty patch":   {},
			"too young":     {Age: intPtr(12)},
			"negative":      {BudgetLow: intPtr(-1)},
			"blank name":    {FullName: strPtr("   ")},
			"long location": {Location: strPtr(strings.Repeat("x", 121))},
		}
		for name, upd := range cases {
			_, err := app.UpdateProfile(ctx, u.ID, upd)
			assert.Equal(t, KindValidation, kindOf(err), name)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := app.UpdateProfile(ctx, uuid.New(), ProfileUpdate{Age: intPtr(30)})
		assert.Equal(t, KindNotFound, kindOf(err))
	})
}

func TestReplacePreferences(t *testing.T) {
	app, store := newTestApp(t)
	ctx := context.Background()
	u := store.addUser("Alice Smith")

	got, err := app.ReplacePreferences(ctx, u.ID, []Preference{
		{Type: " Lifestyle ", Value: " quiet "},
		{Type: "lifestyle", Value: "quiet"},
		{Type: "habit", Value: "early riser"},
	})
	require.NoError(t, err)
	assert.Equal(t, []Preference{
		{Type: "lifestyle", Value: "quiet"},
		{Type: "habit", Value: "early riser"},
	}, got.Preferences)

	// Replacement, not merge.
	got, err = app.ReplacePreferences(ctx, u.ID, []Preference{{Type: "other", Value: "plants"}})
	require.NoError(t, err)
	assert.Equal(t, []Preference{{Type: "other", Value: "plants"}}, got.Preferences)

	got, err = app.ReplacePreferences(ctx, u.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, got.Preferences)

	_, err = app.ReplacePreferences(ctx, u.ID, []Preference{{Type: "habit", Value: ""}})
	assert.Equal(t, KindValidation, kindOf(err))

	tooMany := make([]Preference, maxPreferences+1)
	for i := range tooMany {
		tooMany[i] = Preference{Type: "other", Value: strings.Repeat("v", i+1)}
	}
	_, err = app.ReplacePreferences(ctx, u.ID, tooMany)
	assert.Equal(t, KindValidation, kindOf(err))
}
