package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoImage = "mongo:7"

// sharedMongo is started lazily and reused by every test in the binary.
var sharedMongo struct {
	once sync.Once
	uri  string
	err  error
}

func startMongo() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	c, err := testcontainers.Run(ctx, mongoImage,
		testcontainers.WithExposedPorts("27017/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("27017/tcp"),
			wait.ForLog("mongod startup complete"),
		),
	)
	if err != nil {
		return "", err
	}
	host, err := c.Endpoint(ctx, "mongodb")
	if err != nil {
		_ = c.Terminate(context.Background())
		return "", err
	}
	return host, nil
}

// GetMongoURI returns the URI of the shared MongoDB container. The test is
// skipped in -short mode or when no container runtime is reachable.
func GetMongoURI(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("mongo container tests disabled by -short")
	}
	sharedMongo.once.Do(func() {
		sharedMongo.uri, sharedMongo.err = startMongo()
	})
	if sharedMongo.err != nil {
		t.Skipf("mongo container unavailable: %v", sharedMongo.err)
	}
	return sharedMongo.uri
}

// MongoClient connects to the shared container and disconnects when t ends.
func MongoClient(t *testing.T) *mongo.Client {
	t.Helper()
	uri := GetMongoURI(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("connect to %s: %v", uri, err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	if err := client.Ping(ctx, nil); err != nil {
		t.Fatalf("ping %s: %v", uri, err)
	}
	return client
}
