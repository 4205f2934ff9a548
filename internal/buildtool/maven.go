package buildtool

import "fmt"

// MavenTool configures builds and tests through Maven.
type MavenTool struct{}

func (m *MavenTool) Name() string { return "maven" }

func (m *MavenTool) ConfigFiles(projectName string) map[string]string {
	pom := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<project xmlns="http://maven.apache.org/POM/4.0.0"
         xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
         xsi:schemaLocation="http://maven.apache.org/POM/4.0.0 http://maven.apache.org/xsd/maven-4.0.0.xsd">
    <modelVersion>4.0.0</modelVersion>

    <groupId>edu.grader</groupId>
    <artifactId>%s</artifactId>
    <version>1.0.0</version>
    <packaging>jar</packaging>

    <properties>
        <maven.compiler.source>17</maven.compiler.source>
        <maven.compiler.target>17</maven.compiler.target>
        <project.build.sourceEncoding>UTF-8</project.build.sourceEncoding>
    </properties>

    <dependencies>
        <dependency>
            <groupId>org.junit.jupiter</groupId>
            <artifactId>junit-jupiter</artifactId>
            <version>5.10.2</version>
            <scope>test</scope>
        </dependency>
    </dependencies>
</project>
`, projectName)

	return map[string]string{"pom.xml": pom}
}

func (m *MavenTool) SourceRoot() string { return "src/main/java" }

func (m *MavenTool) TestRoot() string { return "src/test/java" }

func (m *MavenTool) TestCommand(workspace string) string {
	return fmt.Sprintf("cd %s && mvn -B -q test", workspace)
}

func (m *MavenTool) ReportDir() string { return "target/surefire-reports" }
