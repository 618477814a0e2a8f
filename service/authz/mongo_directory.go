package authz

import (
	"context"
	"errors"

	"PPCollab/data/database/mgo/mongoutil"
	"PPCollab/service/auth"
	"PPCollab/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collUsers      = "users"
	collChannels   = "channels"
	collProjects   = "projects"
	collWorkspaces = "workspaces"
)

// MongoDirectory 直接读 REST 层写入的文档，只读
type MongoDirectory struct {
	db *mongo.Database
}

func NewMongoDirectory(cli *mongoutil.Client) *MongoDirectory {
	return &MongoDirectory{db: cli.GetDB()}
}

// ref 兼容 ObjectID / 字符串 / {user: ...} 三种成员写法
type ref string

func (r *ref) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.ObjectID:
		*r = ref(raw.ObjectID().Hex())
	case bsontype.String:
		*r = ref(raw.StringValue())
	case bsontype.EmbeddedDocument:
		v, err := raw.Document().LookupErr("user")
		if err != nil {
			return nil
		}
		return r.UnmarshalBSONValue(v.Type, v.Value)
	case bsontype.Null:
		*r = ""
	default:
		return errors.New("unsupported member reference type " + t.String())
	}
	return nil
}

func refs(rs []ref) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		if r != "" {
			out = append(out, string(r))
		}
	}
	return out
}

type userDoc struct {
	ID     ref    `bson:"_id"`
	Name   string `bson:"name"`
	Avatar string `bson:"avatar"`
}

type channelDoc struct {
	ID        ref    `bson:"_id"`
	Workspace ref    `bson:"workspace"`
	Type      string `bson:"type"`
	Members   []ref  `bson:"members"`
}

type projectDoc struct {
	ID        ref   `bson:"_id"`
	Workspace ref   `bson:"workspace"`
	Members   []ref `bson:"members"`
}

// idFilter 同时匹配 ObjectID 和字符串主键
func idFilter(field, id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{field: bson.M{"$in": bson.A{oid, id}}}
	}
	return bson.M{field: id}
}

func (d *MongoDirectory) findOne(ctx context.Context, coll, id string, out any, proj bson.M) error {
	err := d.db.Collection(coll).FindOne(ctx, idFilter("_id", id), options.FindOne().SetProjection(proj)).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return errs.ErrRecordNotFound.WrapMsg(coll, "id", id)
	}
	if err != nil {
		return errs.WrapMsg(err, "mongo find", "coll", coll, "id", id)
	}
	return nil
}

func (d *MongoDirectory) FindIdentity(ctx context.Context, id string) (*auth.Identity, error) {
	var u userDoc
	if err := d.findOne(ctx, collUsers, id, &u, bson.M{"name": 1, "avatar": 1}); err != nil {
		return nil, err
	}
	return &auth.Identity{ID: string(u.ID), DisplayName: u.Name, AvatarRef: u.Avatar}, nil
}

func (d *MongoDirectory) Channel(ctx context.Context, id string) (*Channel, error) {
	var c channelDoc
	if err := d.findOne(ctx, collChannels, id, &c, bson.M{"workspace": 1, "type": 1, "members": 1}); err != nil {
		return nil, err
	}
	return &Channel{
		ID:          string(c.ID),
		WorkspaceID: string(c.Workspace),
		Visibility:  normalizeVisibility(c.Type),
		Members:     refs(c.Members),
	}, nil
}

func (d *MongoDirectory) Project(ctx context.Context, id string) (*Project, error) {
	var p projectDoc
	if err := d.findOne(ctx, collProjects, id, &p, bson.M{"workspace": 1, "members": 1}); err != nil {
		return nil, err
	}
	return &Project{
		ID:          string(p.ID),
		WorkspaceID: string(p.Workspace),
		Members:     refs(p.Members),
	}, nil
}

// IsWorkspaceMember owner 或 members.user 命中即可
func (d *MongoDirectory) IsWorkspaceMember(ctx context.Context, workspaceID, identityID string) (bool, error) {
	member := bson.A{identityID}
	if oid, err := primitive.ObjectIDFromHex(identityID); err == nil {
		member = append(member, oid)
	}
	filter := bson.M{
		"$and": bson.A{
			idFilter("_id", workspaceID),
			bson.M{"$or": bson.A{
				bson.M{"owner": bson.M{"$in": member}},
				bson.M{"members.user": bson.M{"$in": member}},
				bson.M{"members": bson.M{"$in": member}},
			}},
		},
	}
	n, err := d.db.Collection(collWorkspaces).CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, errs.WrapMsg(err, "mongo count", "coll", collWorkspaces, "id", workspaceID)
	}
	return n > 0, nil
}
