// Package mongo is the mongo tool: collection queries and writes against
// MONGODB_URI.
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shineum/skillkit/internal/args"
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/format"
)

// defaultLimit caps find when --limit is not given.
const defaultLimit = 20

// Program returns the mongo command set.
func Program() *cli.Program {
	return &cli.Program{
		Name:  "mongo",
		Short: "query and modify MongoDB collections (MONGODB_URI, MONGODB_DB or --db)",
		Commands: []*cli.Command{
			{Name: "collections", Usage: "[--db name]", Short: "list collections", Run: collections},
			{Name: "find", Usage: "<collection> [--filter JSON] [--sort JSON] [--limit N] [--format table|json|csv]", Short: "find documents", Run: find},
			{Name: "count", Usage: "<collection> [--filter JSON]", Short: "count documents", Run: count},
			{Name: "insert", Usage: "<collection> <document-or-array-JSON>", Short: "insert one or many documents", Run: insert},
			{Name: "update", Usage: "<collection> --filter JSON --set JSON [--many]", Short: "set fields on matching documents", Run: update},
			{Name: "delete", Usage: "<collection> --filter JSON [--many]", Short: "delete matching documents", Run: remove},
			{Name: "aggregate", Usage: "<collection> <pipeline-JSON>", Short: "run an aggregation pipeline", Run: aggregate},
		},
	}
}

// connect opens a client and returns the selected database. Callers must
// call the returned close function.
func connect(ctx context.Context, env *cli.Env, a *args.Args) (*mongo.Database, func(), error) {
	mc := env.Config.Mongo
	if mc.URI == "" {
		return nil, nil, cli.NotConfigured("MongoDB connection", "set MONGODB_URI")
	}
	dbName := a.StringOr("db", mc.Database)
	if dbName == "" {
		return nil, nil, cli.NotConfigured("MongoDB database", "set MONGODB_DB or pass --db")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mc.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	closeFn := func() {
		if err := client.Disconnect(context.Background()); err != nil {
			slog.Debug("disconnect", "error", err)
		}
	}
	return client.Database(dbName), closeFn, nil
}

func collections(ctx context.Context, env *cli.Env, a *args.Args) error {
	db, closeFn, err := connect(ctx, env, a)
	if err != nil {
		return err
	}
	defer closeFn()

	names, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	sort.Strings(names)
	for _, n := range names {
		env.Println(n)
	}
	return nil
}

func find(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("collection"); err != nil {
		return err
	}
	filter, err := optionalDoc(a, "filter")
	if err != nil {
		return err
	}
	sortDoc, err := optionalDoc(a, "sort")
	if err != nil {
		return err
	}
	limit, err := a.Int("limit", defaultLimit)
	if err != nil {
		return err
	}
	mode, err := format.ParseMode(a.StringOr("format", ""))
	if err != nil {
		return err
	}

	db, closeFn, err := connect(ctx, env, a)
	if err != nil {
		return err
	}
	defer closeFn()

	opts := options.Find().SetLimit(int64(limit))
	if len(sortDoc) > 0 {
		opts.SetSort(sortDoc)
	}
	cur, err := db.Collection(a.Arg(0)).Find(ctx, filter, opts)
	if err != nil {
		return fmt.Errorf("find: %w", err)
	}
	return writeCursor(ctx, env, mode, cur)
}

func count(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("collection"); err != nil {
		return err
	}
	filter, err := optionalDoc(a, "filter")
	if err != nil {
		return err
	}

	db, closeFn, err := connect(ctx, env, a)
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := db.Collection(a.Arg(0)).CountDocuments(ctx, filter)
	if err != nil {
		return fmt.Errorf("count: %w", err)
	}
	env.Println(n)
	return nil
}

func insert(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("collection", "document"); err != nil {
		return err
	}
	docs, err := parseDocs(a.Arg(1))
	if err != nil {
		return err
	}

	db, closeFn, err := connect(ctx, env, a)
	if err != nil {
		return err
	}
	defer closeFn()

	coll := db.Collection(a.Arg(0))
	if len(docs) == 1 {
		res, err := coll.InsertOne(ctx, docs[0])
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		env.Printf("Inserted %s\n", format.Value(normalize(res.InsertedID)))
		return nil
	}

	res, err := coll.InsertMany(ctx, docs)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	env.Printf("Inserted %d documents\n", len(res.InsertedIDs))
	return nil
}

func update(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("collection"); err != nil {
		return err
	}
	if err := a.Require("filter", "set"); err != nil {
		return err
	}
	filter, err := requiredDoc(a, "filter")
	if err != nil {
		return err
	}
	set, err := requiredDoc(a, "set")
	if err != nil {
		return err
	}

	db, closeFn, err := connect(ctx, env, a)
	if err != nil {
		return err
	}
	defer closeFn()

	coll := db.Collection(a.Arg(0))
	change := bson.D{{Key: "$set", Value: set}}

	var res *mongo.UpdateResult
	if a.Bool("many") {
		res, err = coll.UpdateMany(ctx, filter, change)
	} else {
		res, err = coll.UpdateOne(ctx, filter, change)
	}
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	env.Printf("Matched %d, modified %d\n", res.MatchedCount, res.ModifiedCount)
	return nil
}

func remove(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("collection"); err != nil {
		return err
	}
	if err := a.Require("filter"); err != nil {
		return err
	}
	filter, err := requiredDoc(a, "filter")
	if err != nil {
		return err
	}
	if len(filter) == 0 && a.Bool("many") {
		return cli.Usagef("refusing to delete every document; narrow --filter")
	}

	db, closeFn, err := connect(ctx, env, a)
	if err != nil {
		return err
	}
	defer closeFn()

	coll := db.Collection(a.Arg(0))
	var res *mongo.DeleteResult
	if a.Bool("many") {
		res, err = coll.DeleteMany(ctx, filter)
	} else {
		res, err = coll.DeleteOne(ctx, filter)
	}
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	env.Printf("Deleted %d\n", res.DeletedCount)
	return nil
}

func aggregate(ctx context.Context, env *cli.Env, a *args.Args) error {
	if err := a.RequireArgs("collection", "pipeline"); err != nil {
		return err
	}
	pipeline, err := parsePipeline(a.Arg(1))
	if err != nil {
		return err
	}
	mode, err := format.ParseMode(a.StringOr("format", ""))
	if err != nil {
		return err
	}

	db, closeFn, err := connect(ctx, env, a)
	if err != nil {
		return err
	}
	defer closeFn()

	cur, err := db.Collection(a.Arg(0)).Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}
	return writeCursor(ctx, env, mode, cur)
}

func writeCursor(ctx context.Context, env *cli.Env, mode format.Mode, cur *mongo.Cursor) error {
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return fmt.Errorf("read results: %w", err)
	}
	return format.Write(env.Stdout, mode, documentsResult(docs))
}
