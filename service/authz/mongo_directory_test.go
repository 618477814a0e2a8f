package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestChannelDoc_MemberShapes(t *testing.T) {
	oid := primitive.NewObjectID()
	ws := primitive.NewObjectID()
	raw, err := bson.Marshal(bson.M{
		"_id":       "c1",
		"workspace": ws,
		"type":      "private",
		"members": bson.A{
			oid,
			"u2",
			bson.M{"user": "u3", "role": "admin"},
			bson.M{"role": "orphan"},
		},
	})
	require.NoError(t, err)

	var doc channelDoc
	require.NoError(t, bson.Unmarshal(raw, &doc))
	assert.Equal(t, "c1", string(doc.ID))
	assert.Equal(t, ws.Hex(), string(doc.Workspace))
	assert.Equal(t, []string{oid.Hex(), "u2", "u3"}, refs(doc.Members))
}

func TestIdFilter(t *testing.T) {
	oid := primitive.NewObjectID()
	f := idFilter("_id", oid.Hex())
	in := f["_id"].(bson.M)["$in"].(bson.A)
	assert.Equal(t, bson.A{oid, oid.Hex()}, in)

	assert.Equal(t, bson.M{"_id": "plain"}, idFilter("_id", "plain"))
}
