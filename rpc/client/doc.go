// Package client implements the remote db.KVDB of evkv: every operation is
// sent to the server hosting a shard and executed by the database there.
//
// Key Components:
//
//   - Open: connects to the endpoints of a common.ClientConfig with the
//     transport and serializer named in it and returns the db.KVDB of a shard.
//
//   - NewRPCKVDB: the same with an explicit transport and serializer.
//
// The remote database reports the features of the server side database plus
// db.FeatureRemote. Scan fetches all matching entries in a single request.
// Close only closes the connections; afterwards every operation returns
// db.ErrClosed. Failed requests return a *common.Error carrying the RetCode of
// the server, a closed database on the server unwraps to db.ErrClosed.
//
// Usage Example:
//
//	cfg := common.DefaultClientConfig()
//	cfg.Endpoints = []string{"localhost:8080"}
//
//	kv, err := client.Open(cfg, 1)
//	if err != nil {
//	  log.Fatal(err)
//	}
//	defer kv.Close()
//
//	_ = kv.Set([]byte("mykey"), []byte("myvalue"))
//	value, found, _ := kv.Get([]byte("mykey"))
//
// Performance Considerations:
//
//   - For applications that frequently send large payloads, increasing ConnectionsPerEndpoint
//     can improve throughput by allowing parallel requests.
//
//   - The choice of serializer significantly affects performance. The binary serializer
//     provides the best performance and smallest payload size.
//
// Thread Safety:
//
//	The remote database is safe for concurrent use.
package client
