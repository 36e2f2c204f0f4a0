package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graceworks/missionsync/internal/models"
)

func TestBeaconCreateConstituent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/constituent/v1/constituents", r.URL.Path)
		// Beacon answers creates with a numeric id
		fmt.Fprint(w, `{"id": 9001}`)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server)
	b := NewBeacon(c, 50)

	id, err := b.CreateConstituent(context.Background(), &models.Constituent{First: "Jane", Last: "Doe"})
	require.NoError(t, err)
	assert.Equal(t, "9001", id)
}

func TestBeaconCreateConstituent_NoID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server)
	b := NewBeacon(c, 50)

	_, err := b.CreateConstituent(context.Background(), &models.Constituent{First: "Jane"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no id")
}

func TestBeaconSearchConstituents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/constituent/v1/constituents/search", r.URL.Path)
		assert.Equal(t, "jane@example.org", r.URL.Query().Get("search_text"))
		fmt.Fprint(w, `{"count": 2, "value": [
			{"id": "C-1", "first": "Jane", "last": "Doe", "email": "jane@example.org"},
			{"id": 42, "first": "Janet", "last": "Doer"}
		]}`)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server)
	b := NewBeacon(c, 50)

	results, err := b.SearchConstituents(context.Background(), "jane@example.org")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, models.FlexID("C-1"), results[0].ID)
	assert.Equal(t, models.FlexID("42"), results[1].ID)
}

func TestBeaconListEventParticipants_OffsetPaging(t *testing.T) {
	var offsets []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/event/v1/events/E-1/participants", r.URL.Path)
		offset := r.URL.Query().Get("offset")
		offsets = append(offsets, offset)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))

		switch offset {
		case "0":
			fmt.Fprint(w, `{"count": 3, "value": [
				{"id": "P-1", "constituent_id": "C-1", "rsvp_status": "Attending"},
				{"id": "P-2", "constituent_id": "C-2", "rsvp_status": "Declined"}
			]}`)
		case "2":
			fmt.Fprint(w, `{"count": 3, "value": [
				{"id": "P-3", "constituent_id": "C-3", "rsvp_status": "NoResponse"}
			]}`)
		default:
			t.Errorf("unexpected offset %q", offset)
		}
	}))
	defer server.Close()

	c, _ := newTestClient(t, server)
	b := NewBeacon(c, 2)

	participants, err := b.ListEventParticipants(context.Background(), "E-1")
	require.NoError(t, err)
	require.Len(t, participants, 3)
	assert.Equal(t, models.FlexID("C-3"), participants[2].ConstituentID)
	assert.Equal(t, []string{"0", "2"}, offsets)
}

func TestBeaconGiftExists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/gift/v1/gifts", r.URL.Path)
		assert.Equal(t, "SP-Payment-5001", r.URL.Query().Get("lookup_id"))
		// loose search also returns a near-miss that must not count
		fmt.Fprint(w, `{"count": 2, "value": [
			{"id": "G-1", "lookup_id": "SP-Payment-50011"},
			{"id": "G-2", "reference": "SP-Payment-5001"}
		]}`)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server)
	b := NewBeacon(c, 50)

	exists, err := b.GiftExists(context.Background(), "SP-Payment-5001")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestBeaconGiftExists_NearMissDoesNotCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"count": 1, "value": [{"id": "G-1", "lookup_id": "SP-Payment-50011"}]}`)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server)
	b := NewBeacon(c, 50)

	exists, err := b.GiftExists(context.Background(), "SP-Payment-5001")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBeaconGiftExists_NotFoundMeansAbsent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server)
	b := NewBeacon(c, 50)

	exists, err := b.GiftExists(context.Background(), "SP-Payment-5001")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBeaconListFunds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fundraising/v1/funds", r.URL.Path)
		if r.URL.Query().Get("offset") == "0" {
			fmt.Fprint(w, `{"count": 2, "value": [
				{"id": "F-1", "description": "SP1234 Honduras Trip"},
				{"id": "F-2", "description": "General Fund"}
			]}`)
			return
		}
		fmt.Fprint(w, `{"count": 2, "value": []}`)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server)
	b := NewBeacon(c, 50)

	funds, err := b.ListFunds(context.Background())
	require.NoError(t, err)
	require.Len(t, funds, 2)
	assert.Equal(t, "SP1234 Honduras Trip", funds[0].Description)
}

func TestBeaconGetFund(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fundraising/v1/funds/F-1", r.URL.Path)
		fmt.Fprint(w, `{"id": "F-1", "category": "40105 - Mission Trip Donations", "description": "Mission Trip : SP1234 Honduras"}`)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server)
	b := NewBeacon(c, 50)

	fund, err := b.GetFund(context.Background(), "F-1")
	require.NoError(t, err)
	assert.Equal(t, "40105 - Mission Trip Donations", fund.Category)
	assert.Equal(t, "Mission Trip : SP1234 Honduras", fund.Description)
}

func TestBeaconUpdateParticipant(t *testing.T) {
	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server)
	b := NewBeacon(c, 50)

	err := b.UpdateParticipant(context.Background(), "P-1", map[string]any{"rsvp_status": "Attending"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/event/v1/participants/P-1", gotPath)
}
