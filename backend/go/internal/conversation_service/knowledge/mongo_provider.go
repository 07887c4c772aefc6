package knowledge

import (
	"GeoCMS/backend/go/internal/models"
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoProvider 从 MongoDB 集合中读取知识，文档形如 {topic, description, content}。
type MongoProvider struct {
	collection *mongo.Collection
}

// NewMongoProvider 创建一个 MongoProvider。
func NewMongoProvider(db *mongo.Database, collectionName string) *MongoProvider {
	return &MongoProvider{collection: db.Collection(collectionName)}
}

// Lookup 实现 Provider。
func (p *MongoProvider) Lookup(ctx context.Context, topic string) (interface{}, bool, error) {
	// 解码到 bson.M，嵌套文档同样得到 bson.M 而不是 bson.D。
	var doc bson.M
	err := p.collection.FindOne(ctx, bson.M{"topic": topic}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("查询知识主题 '%s' 失败: %w", topic, err)
	}
	content, err := models.DecodeValue(doc["content"])
	if err != nil {
		return nil, false, fmt.Errorf("知识主题 '%s' 的内容无法转换: %w", topic, err)
	}
	return content, true, nil
}
