package input

import (
	"context"
	"fmt"
	"os"
	"time"

	"git.fiblab.net/general/common/v2/mongoutil"
	"github.com/tsinghua-fib-lab/scenario-gateway/utils/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"gopkg.in/yaml.v2"
)

const (
	mongoTimeout = 30 * time.Second
)

// Input 输入数据
// 功能：存储仿真所需的所有输入数据
// 说明：包含路网与场景，支持从文件或数据库加载
type Input struct {
	Map      *MapData
	Scenario *ScenarioData
}

// Load 加载数据
// 功能：根据配置加载路网与场景
// 参数：config-配置对象
// 返回：加载完成的输入数据指针，失败时返回错误
// 算法说明：
// 1. 若配置了MongoDB且存在未指定文件的输入项则建立连接
// 2. 路网：文件优先，否则从MongoDB读取
// 3. 场景：未配置时为空场景
func Load(config config.Config) (*Input, error) {
	var client *mongo.Client
	needMongo := config.Input.Map.File == "" || (config.Input.Scenario != nil && config.Input.Scenario.File == "")
	if needMongo {
		if config.Input.URI == "" {
			return nil, fmt.Errorf("input: no file given and no mongo uri configured")
		}
		client = mongoutil.NewClient(config.Input.URI)
		defer client.Disconnect(context.Background())
	}

	res := &Input{Scenario: &ScenarioData{}}
	var err error
	if res.Map, err = load(client, config.Input.Map, ParseMap); err != nil {
		return nil, fmt.Errorf("input: load map: %w", err)
	}
	if config.Input.Scenario != nil {
		if res.Scenario, err = load(client, *config.Input.Scenario, ParseScenario); err != nil {
			return nil, fmt.Errorf("input: load scenario: %w", err)
		}
	}
	log.Infof("Road: %v", len(res.Map.Roads))
	log.Infof("Junction: %v", len(res.Map.Junctions))
	log.Infof("Object: %v", len(res.Scenario.Objects))
	log.Infof("Action: %v", len(res.Scenario.Actions))
	return res, nil
}

// ParseMap 从YAML文本解析路网
func ParseMap(data []byte) (*MapData, error) {
	var m MapData
	if err := yaml.UnmarshalStrict(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ParseScenario 从YAML文本解析场景
func ParseScenario(data []byte) (*ScenarioData, error) {
	var s ScenarioData
	if err := yaml.UnmarshalStrict(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// load 加载单项数据（泛型函数）
// 功能：文件存在时读取YAML文件，否则从MongoDB集合中读取第一个文档
func load[T any](client *mongo.Client, path config.InputPath, parse func([]byte) (*T, error)) (*T, error) {
	if path.File != "" {
		data, err := os.ReadFile(path.File)
		if err != nil {
			return nil, err
		}
		log.Infof("load %s", path.File)
		return parse(data)
	}
	if client == nil {
		return nil, fmt.Errorf("no mongo client for %s.%s", path.DB, path.Col)
	}
	log.Infof("start fetching from %s.%s", path.DB, path.Col)
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()
	var res T
	coll := client.Database(path.GetDb()).Collection(path.GetColl())
	if err := coll.FindOne(ctx, bson.M{}).Decode(&res); err != nil {
		return nil, fmt.Errorf("fetch %s.%s: %w", path.DB, path.Col, err)
	}
	log.Infof("finish fetching from %s.%s", path.DB, path.Col)
	return &res, nil
}
